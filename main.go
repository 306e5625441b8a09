// The main package for the pagestash executable.
package main

import (
	"github.com/pagestash/pagestash/cmd"
)

// main defers all execution to the Cobra CLI layer.
func main() {
	cmd.Execute()
}
