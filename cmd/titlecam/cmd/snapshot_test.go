package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/titlecam/internal/testutil"
	"github.com/MeKo-Tech/titlecam/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTitleCard(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "card.png")
	require.NoError(t, utils.SavePNG(path, testutil.GenerateTitleCard(testutil.DefaultTitleCardConfig())))
	return path
}

func TestSnapshotCommandJSON(t *testing.T) {
	card := writeTitleCard(t)
	annotated := filepath.Join(t.TempDir(), "boxed.png")

	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{
		"snapshot", card,
		"--detector", "static",
		"--recognizer", "none",
		"--orientation", "up",
		"--format", "json",
		"--annotate", annotated,
	})
	require.NoError(t, err)

	var result struct {
		Found bool     `json:"found"`
		Text  string   `json:"text"`
		Words []string `json:"words"`
		Box   *struct {
			X, Y, Width, Height float64
		} `json:"box"`
		Orientation string `json:"orientation"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.False(t, result.Found)
	assert.Empty(t, result.Text)
	assert.Empty(t, result.Words)
	require.NotNil(t, result.Box, "static region is always detected")
	assert.Equal(t, "up", result.Orientation)

	info, err := os.Stat(annotated)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSnapshotCommandText(t *testing.T) {
	card := writeTitleCard(t)

	output, err := executeCommandAndCaptureOutput(t, rootCmd, []string{
		"snapshot", card,
		"--detector", "static",
		"--recognizer", "none",
		"--orientation", "right",
		"--format", "text",
		"--annotate", "",
	})
	require.NoError(t, err)
	assert.Equal(t, GetConfig().Pipeline.NotFoundText, output)
}

func TestSnapshotCommandErrors(t *testing.T) {
	card := writeTitleCard(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"snapshot", filepath.Join(t.TempDir(), "nope.png"), "--format", "text", "--orientation", "up"}},
		{"bad orientation", []string{"snapshot", card, "--format", "text", "--orientation", "sideways"}},
		{"bad format", []string{"snapshot", card, "--format", "xml", "--orientation", "up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--detector", "static", "--recognizer", "none")
			_, err := executeCommandAndCaptureOutput(t, rootCmd, args)
			assert.Error(t, err)
		})
	}
}
