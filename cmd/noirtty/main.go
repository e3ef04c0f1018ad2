package main

import "github.com/noirtty/noirtty/internal/cmd"

// @title noirtty API
// @version 1.0
// @description Remote terminal sessions streamed as full-grid frames
// @BasePath /
func main() {
	cmd.Execute()
}
