// Command gazectl is the reference client over the editing core: it
// opens a buffer, prints introspection state, or drives a minimal
// terminal Renderer against it (spec.md §6's Renderer collaborator,
// reduced to a CLI demo so the façade's query_rect/epoch contract has
// a real consumer).
//
// Grounded on dh-cli's cmd/dhg/main.go, which does nothing but hand
// off to its cmd package's Execute.
package main

import (
	"fmt"
	"os"

	"github.com/kovaxis/gaze/internal/gazectl"
)

func main() {
	if err := gazectl.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
