package main

import (
	"github.com/flogvit/wikiportraits-uploader-sub003/cmd/wikiportraits/cmd"
)

func main() {
	// Execute the root command (defined in cmd/root.go)
	cmd.Execute()
}
