package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// NewCommandExecutor builds the native "command_executor" tool: a single
// "run" capability shelling a command string through bash -c, the
// generalized counterpart to the coordinator's CommandExecutor seam for
// callers that reach it through the tool manager instead.
func NewCommandExecutor() Adapter {
	funcs := map[string]NativeFunc{
		"run": func(ctx context.Context, input map[string]any) (any, error) {
			command, _ := input["command"].(string)
			if command == "" {
				return nil, fmt.Errorf("command_executor: missing command")
			}
			cmd := exec.CommandContext(ctx, "bash", "-c", command)
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			if err := cmd.Run(); err != nil {
				if stderr.Len() > 0 {
					return stderr.String(), nil
				}
				return nil, fmt.Errorf("command_executor: %w", err)
			}
			return stdout.String(), nil
		},
	}
	required := map[string][]string{"run": {"command"}}
	return NewNative("command_executor", funcs, required, nil)
}
