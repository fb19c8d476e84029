package decorator

import (
	"fmt"
	"strings"
)

// actionName turns a command or query value into its bare type name,
// e.g. commands.EmitMessageCommand becomes EmitMessageCommand.
func actionName(handler any) string {
	name := strings.TrimLeft(fmt.Sprintf("%T", handler), "*")

	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}

	return name
}
