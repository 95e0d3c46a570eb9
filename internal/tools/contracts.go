// Package tools implements the polymorphic tool execution layer: four
// tool kinds (native, subprocess JSON-RPC, child-process executable, HTTP)
// behind one Execute/HealthCheck/ValidateInput contract, fronted by a
// manager that adds circuit breaking, timeouts, and metrics.
package tools

import (
	"context"
	"time"
)

// Kind is the tagged-variant discriminator for a tool's integration mode.
type Kind string

const (
	KindNative        Kind = "native"
	KindSubprocessRPC Kind = "subprocess_rpc"
	KindExecutable    Kind = "executable"
	KindHTTP          Kind = "http"
)

// ErrorCode is the wire-level error taxonomy every failed Result carries.
type ErrorCode string

const (
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	ErrCapabilityNotFound ErrorCode = "CAPABILITY_NOT_FOUND"
	ErrExecutionError     ErrorCode = "EXECUTION_ERROR"
	ErrNoResponse         ErrorCode = "NO_RESPONSE"
	ErrCircuitOpen        ErrorCode = "CIRCUIT_BREAKER_OPEN"
	ErrMCPError           ErrorCode = "MCP_ERROR"
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
)

// Capability describes one named feature a tool exposes.
type Capability struct {
	Name           string
	InputSchema    map[string]any
	RequiredFields []string
	RiskLevel      string
}

// ResourceLimits are advisory limits on a tool's resource consumption.
type ResourceLimits struct {
	MaxExecutionSeconds int
	MaxMemoryMB         int
}

// Config carries kind-specific configuration. Only the fields relevant to
// a tool's Kind need to be set; validation per kind happens in Manager.Load.
type Config struct {
	// native
	ModulePath string
	CtorName   string
	Native     Adapter // pre-built native adapter instance, when ModulePath resolution is bypassed

	// subprocess_rpc / executable
	Command string
	Args    []string
	Env     map[string]string

	// http
	BaseURL string
	Token   string
	Headers map[string]string

	Timeout time.Duration
}

// Descriptor is a tool's static metadata: name, version, kind,
// capabilities, kind-specific config, and advisory resource limits.
type Descriptor struct {
	Name         string
	Version      string
	Kind         Kind
	Capabilities []Capability
	Config       Config
	Limits       ResourceLimits
}

// HasCapability reports whether the descriptor advertises name.
func (d Descriptor) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Capability looks up a capability by name.
func (d Descriptor) Capability(name string) (Capability, bool) {
	for _, c := range d.Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return Capability{}, false
}

// Result is the outcome of a single Execute call.
type Result struct {
	OK        bool
	Data      any
	ErrorCode ErrorCode
	Error     string
	Duration  time.Duration
}

// Health is the outcome of a HealthCheck call.
type Health struct {
	Healthy bool
	Message string
	Details map[string]any
}

// Request is one call into a tool instance.
type Request struct {
	Capability string
	Input      map[string]any
	Timeout    time.Duration
	TraceID    string
}

// Adapter is the uniform contract every tool kind implements. Native,
// subprocess-RPC, executable, and HTTP adapters all satisfy this with no
// virtual dispatch beyond the interface call itself — the tagged Kind on
// Descriptor is what the manager switches on to construct the right
// adapter, not anything the adapter itself inspects at call time.
type Adapter interface {
	Execute(ctx context.Context, req Request) Result
	HealthCheck(ctx context.Context) Health
	ValidateInput(capability string, input map[string]any) []error
}
