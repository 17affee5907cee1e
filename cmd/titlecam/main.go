package main

import "github.com/MeKo-Tech/titlecam/cmd/titlecam/cmd"

func main() {
	cmd.Execute()
}
