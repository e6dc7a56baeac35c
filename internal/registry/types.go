package registry

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// CoreGroup is the designated always-on group. It carries the gateway's own
// negotiation and session operations and can never be disabled.
const CoreGroup = "core"

// RiskTag classifies an operation by its effect on the remote platform.
type RiskTag string

const (
	RiskRead  RiskTag = "read"
	RiskWrite RiskTag = "write"
)

// Result is what a handler produces on success. Text is the agent-facing
// rendering; Data carries the structured payload for the envelope.
type Result struct {
	Text string
	Data interface{}
}

// HandlerFunc executes one operation against already-validated arguments.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (*Result, error)

// Descriptor describes one operation exposed through the gateway.
// Descriptors are immutable once registered.
type Descriptor struct {
	Tool         mcp.Tool // carries name, description, and input schema
	Group        string   // owning group id
	Risk         RiskTag
	RequiresAuth bool // dispatcher triggers the auth resolver lazily for these
	// SensitiveResult marks operations whose success payload carries auth
	// material. The dispatcher redacts the persisted payload for these;
	// the returned envelope is unaffected.
	SensitiveResult bool
	Handler         HandlerFunc
}

// Name returns the operation name.
func (d Descriptor) Name() string {
	return d.Tool.Name
}

// GroupStatus reports one group and whether it is currently enabled.
type GroupStatus struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}
