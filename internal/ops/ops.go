// Package ops defines the operation catalogue the gateway advertises and
// the handlers behind it. Core operations act on the gateway itself; every
// other group is a thin adapter over the remote platform services.
package ops

import (
	"context"
	"encoding/json"
	"fmt"

	"govgate/internal/auth"
	"govgate/internal/registry"
	"govgate/internal/telemetry"
)

// Invoker is the remote call surface the service-backed handlers use.
// platform.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, token, service, operation string, payload interface{}) (json.RawMessage, error)
}

// Deps carries the collaborators the handlers close over. Invoker is a
// factory so environment switches take effect on the next call.
type Deps struct {
	Registry *registry.Registry
	Recorder *telemetry.Recorder
	Resolver *auth.Resolver
	Invoker  func() Invoker
	Version  string
}

// RegisterAll registers every built-in operation with the registry.
func RegisterAll(deps Deps) error {
	for _, register := range []func(Deps) error{
		registerCoreOps,
		registerRegistryOps,
		registerDocumentOps,
		registerReportOps,
	} {
		if err := register(deps); err != nil {
			return err
		}
	}
	return nil
}

// invokeService performs one remote platform call and decodes the response
// for the result payload.
func (d Deps) invokeService(ctx context.Context, service, operation string, payload map[string]interface{}) (*registry.Result, error) {
	if d.Invoker == nil {
		return nil, fmt.Errorf("no platform client configured")
	}

	raw, err := d.Invoker().Invoke(ctx, d.Resolver.Token(), service, operation, payload)
	if err != nil {
		return nil, err
	}

	var data interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode %s.%s response: %w", service, operation, err)
		}
	}
	return &registry.Result{
		Text: fmt.Sprintf("%s.%s completed", service, operation),
		Data: data,
	}, nil
}

func stringArg(args map[string]interface{}, key string) string {
	if value, ok := args[key].(string); ok {
		return value
	}
	return ""
}

func requiredString(args map[string]interface{}, key string) (string, error) {
	value := stringArg(args, key)
	if value == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return value, nil
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if value, ok := item.(string); ok {
			values = append(values, value)
		}
	}
	return values
}

func objectArg(args map[string]interface{}, key string) map[string]interface{} {
	if value, ok := args[key].(map[string]interface{}); ok {
		return value
	}
	return nil
}
