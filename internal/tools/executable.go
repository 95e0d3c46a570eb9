package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"
)

// executableAdapter is the executable tool kind: a short-lived child
// process invoked once per call as `exe_path <capability> <json_input>`.
type executableAdapter struct {
	path string
}

// NewExecutable builds an executable adapter around a binary path.
func NewExecutable(path string) Adapter {
	return &executableAdapter{path: path}
}

func (e *executableAdapter) Execute(ctx context.Context, req Request) Result {
	start := time.Now()
	payload, err := json.Marshal(req.Input)
	if err != nil {
		return Result{OK: false, ErrorCode: ErrExecutionError, Error: err.Error(), Duration: time.Since(start)}
	}

	cmd := exec.CommandContext(ctx, e.path, req.Capability, string(payload))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	dur := time.Since(start)

	if ctx.Err() != nil {
		return Result{OK: false, ErrorCode: ErrTimeout, Error: ctx.Err().Error(), Duration: dur}
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "Executable failed"
		}
		return Result{OK: false, ErrorCode: ErrExecutionError, Error: msg, Duration: dur}
	}

	out := stdout.Bytes()
	var data any
	if jsonErr := json.Unmarshal(out, &data); jsonErr == nil {
		return Result{OK: true, Data: data, Duration: dur}
	}
	return Result{OK: true, Data: map[string]any{"output": string(out)}, Duration: dur}
}

func (e *executableAdapter) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.path, "--health")
	if err := cmd.Run(); err != nil {
		return Health{Healthy: false, Message: err.Error()}
	}
	return Health{Healthy: true, Message: "exit 0"}
}

func (e *executableAdapter) ValidateInput(capability string, input map[string]any) []error {
	return nil
}
