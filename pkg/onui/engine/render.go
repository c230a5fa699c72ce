package engine

import (
	"fmt"
	"strings"
)

// RenderExecution produces the textual rendering of a script execution
// result, fed back to both the model and the UI.
func RenderExecution(stdout string, returns []string, scriptErr string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(stdout))

	for i, v := range returns {
		fmt.Fprintf(&b, "\n** Ret[%d]: %s", i+1, v)
	}
	if scriptErr != "" {
		fmt.Fprintf(&b, "\n** Err: %s", scriptErr)
	}

	return strings.TrimSpace(b.String())
}
