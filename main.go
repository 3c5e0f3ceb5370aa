// The main package for the rescue-radar executable.
package main

import (
	"github.com/JakeFAU/rescue-radar/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
