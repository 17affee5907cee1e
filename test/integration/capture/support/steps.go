package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/MeKo-Tech/titlecam/internal/server"
	"github.com/MeKo-Tech/titlecam/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterSteps binds the step definitions to sc.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the camera is held in "([^"]*)" orientation$`, tc.theCameraIsHeldIn)
	sc.Step(`^the device is rotated to "([^"]*)"$`, tc.theDeviceIsRotatedTo)
	sc.Step(`^a title card reading "([^"]*)" is in view$`, tc.aTitleCardReadingIsInView)
	sc.Step(`^a title card without text is in view$`, tc.aTitleCardWithoutTextIsInView)
	sc.Step(`^nothing is detected in view$`, tc.nothingIsDetectedInView)
	sc.Step(`^the recognizer is slow$`, tc.theRecognizerIsSlow)
	sc.Step(`^the recognizer finishes$`, tc.theRecognizerFinishes)
	sc.Step(`^I request a capture$`, tc.iRequestACapture)
	sc.Step(`^I report the device rotation "([^"]*)"$`, tc.iReportTheDeviceRotation)
	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the displayed result should be "([^"]*)"$`, tc.theDisplayedResultShouldBe)
	sc.Step(`^the recognizer should have been asked with orientation "([^"]*)"$`, tc.theRecognizerShouldHaveBeenAskedWith)
	sc.Step(`^the recognizer should have been called (\d+) times?$`, tc.theRecognizerShouldHaveBeenCalled)
	sc.Step(`^the preview box should cover the card as seen by the sensor$`, tc.thePreviewBoxShouldCoverTheCard)
	sc.Step(`^the orientation should be "([^"]*)"$`, tc.theOrientationShouldBe)
	sc.Step(`^the history should list "([^"]*)"$`, tc.theHistoryShouldList)
	sc.Step(`^the state should be "([^"]*)"$`, tc.theStateShouldBe)
}

func (tc *TestContext) theCameraIsHeldIn(name string) error {
	o, err := geometry.ParseOrientation(name)
	if err != nil {
		return err
	}
	tc.Tracker.Set(o)
	return nil
}

func (tc *TestContext) theDeviceIsRotatedTo(name string) error {
	return tc.iReportTheDeviceRotation(name)
}

func (tc *TestContext) showCard(lines []string) error {
	tc.Detector.Set([]geometry.Rect{tc.Card.CardRect()}, nil)
	tc.Recognizer.Set(lines, nil)
	if _, ok := tc.Feed.Emit(testutil.GenerateTitleCard(tc.Card)); !ok {
		return fmt.Errorf("camera refused frame")
	}
	return tc.waitPreview()
}

func (tc *TestContext) aTitleCardReadingIsInView(title string) error {
	return tc.showCard([]string{title})
}

func (tc *TestContext) aTitleCardWithoutTextIsInView() error {
	return tc.showCard(nil)
}

func (tc *TestContext) nothingIsDetectedInView() error {
	tc.Detector.Set(nil, nil)
	if _, ok := tc.Feed.Emit(testutil.GenerateTitleCard(tc.Card)); !ok {
		return fmt.Errorf("camera refused frame")
	}
	return tc.waitPreview()
}

func (tc *TestContext) waitPreview() error {
	select {
	case <-tc.Previews.Frames:
		return nil
	case <-time.After(waitTimeout):
		return fmt.Errorf("no preview frame within %s", waitTimeout)
	}
}

func (tc *TestContext) theRecognizerIsSlow() error {
	tc.Recognizer.Block = make(chan struct{})
	return nil
}

func (tc *TestContext) theRecognizerFinishes() error {
	if tc.Recognizer.Block == nil {
		return fmt.Errorf("recognizer is not blocked")
	}
	close(tc.Recognizer.Block)
	return nil
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.HTTP.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tc.HTTP.Client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	tc.LastStatus = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) iRequestACapture() error {
	return tc.do(http.MethodPost, "/api/capture", nil)
}

func (tc *TestContext) iReportTheDeviceRotation(device string) error {
	if err := tc.do(http.MethodPost, "/api/orientation", server.OrientationRequest{Device: device}); err != nil {
		return err
	}
	if tc.LastStatus != http.StatusOK {
		return fmt.Errorf("orientation update failed: %d %s", tc.LastStatus, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) theResponseStatusShouldBe(status int) error {
	if tc.LastStatus != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, tc.LastStatus, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) waitResult() (pipeline.SnapshotResult, error) {
	if tc.LastResult != nil {
		return *tc.LastResult, nil
	}
	select {
	case r := <-tc.Presenter.Shown:
		tc.LastResult = &r
		return r, nil
	case <-time.After(waitTimeout):
		return pipeline.SnapshotResult{}, fmt.Errorf("no result shown within %s", waitTimeout)
	}
}

func (tc *TestContext) theDisplayedResultShouldBe(text string) error {
	r, err := tc.waitResult()
	if err != nil {
		return err
	}
	if got := r.DisplayText(NotFoundText); got != text {
		return fmt.Errorf("expected %q, got %q", text, got)
	}
	return nil
}

func (tc *TestContext) theRecognizerShouldHaveBeenAskedWith(name string) error {
	want, err := geometry.ParseOrientation(name)
	if err != nil {
		return err
	}
	if _, err := tc.waitResult(); err != nil {
		return err
	}
	calls := tc.Recognizer.Calls()
	if len(calls) == 0 {
		return fmt.Errorf("recognizer was never called")
	}
	if got := calls[len(calls)-1].Orientation; got != want {
		return fmt.Errorf("expected orientation %s, got %s", want, got)
	}
	return nil
}

func (tc *TestContext) theRecognizerShouldHaveBeenCalled(n int) error {
	if got := len(tc.Recognizer.Calls()); got != n {
		return fmt.Errorf("expected %d recognizer calls, got %d", n, got)
	}
	return nil
}

func (tc *TestContext) thePreviewBoxShouldCoverTheCard() error {
	frames := tc.Previews.All()
	if len(frames) == 0 {
		return fmt.Errorf("no preview frames")
	}
	last := frames[len(frames)-1]
	if len(last.Boxes) != 1 {
		return fmt.Errorf("expected 1 preview box, got %d", len(last.Boxes))
	}
	want := geometry.RotateToMatch(tc.Card.CardRect(), last.Orientation)
	if !last.Boxes[0].ApproxEqual(want, 1e-9) {
		return fmt.Errorf("expected box %s, got %s", want, last.Boxes[0])
	}
	return nil
}

func (tc *TestContext) theOrientationShouldBe(name string) error {
	if err := tc.do(http.MethodGet, "/api/orientation", nil); err != nil {
		return err
	}
	var resp server.OrientationResponse
	if err := json.Unmarshal(tc.LastBody, &resp); err != nil {
		return err
	}
	if resp.Orientation.String() != name {
		return fmt.Errorf("expected orientation %s, got %s", name, resp.Orientation)
	}
	return nil
}

func (tc *TestContext) theHistoryShouldList(text string) error {
	deadline := time.Now().Add(waitTimeout)
	for {
		entries, err := tc.History.List(context.Background(), 10)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Text == text {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%q not recorded", text)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (tc *TestContext) theStateShouldBe(state string) error {
	deadline := time.Now().Add(waitTimeout)
	for {
		if got := tc.Coord.State().String(); strings.EqualFold(got, state) {
			return nil
		} else if time.Now().After(deadline) {
			return fmt.Errorf("expected state %s, got %s", state, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
