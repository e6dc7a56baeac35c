// Package dispatch routes every incoming operation request through the
// capability registry, session telemetry, and the auth resolver, and
// returns a uniform envelope. Nothing escapes the dispatcher as an
// unhandled fault.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"govgate/internal/auth"
	"govgate/internal/registry"
	"govgate/internal/telemetry"
	"govgate/pkg/logging"
)

// reminderHint is appended to a successful textual result when the session
// has gone a full interval without a checkpoint.
const reminderHint = "\n\nNote: several operations have run since the last checkpoint. " +
	"Consider calling session_checkpoint to record your progress."

// Envelope is the uniform response returned for every request. Success
// responses carry a payload and/or a textual message; failures carry only
// the message.
type Envelope struct {
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Dispatcher composes the three core subsystems.
type Dispatcher struct {
	registry *registry.Registry
	recorder *telemetry.Recorder
	resolver *auth.Resolver
}

// New creates a dispatcher. All collaborators are injected so tests can
// run isolated instances concurrently.
func New(reg *registry.Registry, recorder *telemetry.Recorder, resolver *auth.Resolver) *Dispatcher {
	return &Dispatcher{registry: reg, recorder: recorder, resolver: resolver}
}

// Dispatch executes one operation request for a session.
//
// Gate checks run before any telemetry: an unknown operation or a disabled
// group rejects the request with no Call event and no handler invocation.
// After the gate, the call is recorded, auth is resolved lazily when the
// handler needs it, and the outcome is always recorded as a Result event,
// handler failures included.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, opName string, args map[string]interface{}) (envelope Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Dispatcher", fmt.Errorf("%v", rec), "Panic dispatching %s", opName)
			envelope = failure(fmt.Errorf("internal error dispatching %q", opName))
		}
	}()

	descriptor, found := d.registry.Get(opName)
	if !found {
		return failure(NewConfigurationError(opName))
	}
	if !d.registry.GroupEnabled(descriptor.Group) {
		return failure(NewCapabilityDeniedError(opName, descriptor.Group))
	}

	seq, err := d.recorder.RecordCall(sessionID, opName, args)
	if err != nil {
		// The journal is assumed always available; if it does fail the
		// call still proceeds so telemetry trouble cannot break dispatch.
		logging.Error("Dispatcher", err, "Failed to record call %s", opName)
	}

	if descriptor.RequiresAuth && !d.resolver.Authenticated() {
		if err := d.resolver.Ensure(ctx); err != nil {
			d.recorder.RecordResult(sessionID, seq, opName, 0, true, "", err.Error())
			return failure(fmt.Errorf("authentication error: %w", err))
		}
	}

	start := time.Now()
	result, err := d.invoke(WithSession(ctx, sessionID), descriptor, args)
	elapsed := time.Since(start)

	if err != nil {
		handlerErr := &HandlerError{Operation: opName, Err: err}
		d.recorder.RecordResult(sessionID, seq, opName, elapsed, true, "", handlerErr.Error())
		return failure(handlerErr)
	}

	text := result.Text
	if text != "" && d.recorder.ShouldRemind(sessionID) {
		text += reminderHint
	}

	payload := resultPayload(result)
	if descriptor.SensitiveResult {
		payload = telemetry.RedactionMarker
	}
	d.recorder.RecordResult(sessionID, seq, opName, elapsed, false, payload, "")

	return Envelope{Success: true, Payload: result.Data, Message: text}
}

// invoke runs the handler with its own panic containment so a misbehaving
// handler is reported as a HandlerError, not a dispatcher fault.
func (d *Dispatcher) invoke(ctx context.Context, descriptor registry.Descriptor, args map[string]interface{}) (result *registry.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()

	result, err = descriptor.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &registry.Result{}
	}
	return result, nil
}

// resultPayload renders the stored telemetry payload for a success result.
func resultPayload(result *registry.Result) string {
	if result.Data != nil {
		if encoded, err := json.Marshal(result.Data); err == nil {
			return string(encoded)
		}
	}
	return result.Text
}

func failure(err error) Envelope {
	return Envelope{Success: false, Message: err.Error()}
}
