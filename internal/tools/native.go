package tools

import (
	"context"
	"fmt"
)

// NativeFunc implements one capability of an in-process tool.
type NativeFunc func(ctx context.Context, input map[string]any) (any, error)

// nativeAdapter is the in-process tool kind. The source resolves a
// module path + class name and either calls a uniform Execute method or
// falls back to a same-named method per capability; Go has no dynamic
// class loading, so the equivalent here is a capability -> NativeFunc
// table built at registration time (the "same-named method" case) with
// an escape hatch for tools that already implement the full Adapter
// surface directly (the "uniform Execute" case).
type nativeAdapter struct {
	name       string
	funcs      map[string]NativeFunc
	healthFunc func(ctx context.Context) Health
	validators map[string][]string // capability -> required fields
}

// NewNative builds a native adapter from a capability dispatch table.
func NewNative(name string, funcs map[string]NativeFunc, requiredFields map[string][]string, healthFunc func(ctx context.Context) Health) Adapter {
	return &nativeAdapter{
		name:       name,
		funcs:      funcs,
		healthFunc: healthFunc,
		validators: requiredFields,
	}
}

func (n *nativeAdapter) Execute(ctx context.Context, req Request) Result {
	fn, ok := n.funcs[req.Capability]
	if !ok {
		return Result{OK: false, ErrorCode: ErrCapabilityNotFound, Error: fmt.Sprintf("native tool %s: unknown capability %q", n.name, req.Capability)}
	}

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := fn(ctx, req.Input)
		done <- outcome{data, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Result{OK: false, ErrorCode: ErrExecutionError, Error: o.err.Error()}
		}
		return Result{OK: true, Data: o.data}
	case <-ctx.Done():
		return Result{OK: false, ErrorCode: ErrTimeout, Error: ctx.Err().Error()}
	}
}

func (n *nativeAdapter) HealthCheck(ctx context.Context) Health {
	if n.healthFunc != nil {
		return n.healthFunc(ctx)
	}
	return Health{Healthy: true, Message: "native tool has no health probe; assumed healthy"}
}

func (n *nativeAdapter) ValidateInput(capability string, input map[string]any) []error {
	required, ok := n.validators[capability]
	if !ok {
		return nil
	}
	var errs []error
	for _, field := range required {
		if _, present := input[field]; !present {
			errs = append(errs, fmt.Errorf("missing required field %q for capability %q", field, capability))
		}
	}
	return errs
}
