// Idiomatic entrypoint for the Cobra CLI, delegating to cmd/jevois.
package main

import (
	"github.com/harshmittal2210/jevois/cmd/jevois"
)

func main() {
	jevois.Execute()
}
