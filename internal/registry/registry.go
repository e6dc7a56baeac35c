// Package registry owns the set of operation descriptors and which groups
// of them are currently visible to the agent. Mutations that change the
// visible set fire a single change signal so the transport layer can tell
// the agent to refresh its tool list.
package registry

import (
	"fmt"
	"sync"

	"govgate/pkg/logging"
)

// Registry manages operation descriptors and the enabled group set.
type Registry struct {
	mu          sync.RWMutex
	descriptors []Descriptor        // registration order, for stable listings
	byName      map[string]int      // name -> index into descriptors
	groupOrder  []string            // first-registration order of group ids
	enabled     map[string]struct{} // currently enabled group ids

	onChange func() // single synchronous change callback
}

// New creates a registry with only the core group enabled.
func New() *Registry {
	return &Registry{
		byName:  make(map[string]int),
		enabled: map[string]struct{}{CoreGroup: {}},
	}
}

// Register adds a descriptor. Duplicate names fail with a registration
// error; descriptors are immutable afterwards.
func (r *Registry) Register(d Descriptor) error {
	if d.Name() == "" {
		return fmt.Errorf("descriptor has no name")
	}
	if d.Group == "" {
		return fmt.Errorf("descriptor %s has no group", d.Name())
	}
	if d.Handler == nil {
		return fmt.Errorf("descriptor %s has no handler", d.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name()]; exists {
		return fmt.Errorf("operation %s already registered", d.Name())
	}

	r.byName[d.Name()] = len(r.descriptors)
	r.descriptors = append(r.descriptors, d)

	if !containsString(r.groupOrder, d.Group) {
		r.groupOrder = append(r.groupOrder, d.Group)
	}

	return nil
}

// SetOnChange registers the single callback invoked after any mutation that
// actually changes the enabled set. The callback runs synchronously on the
// mutating goroutine; a panic inside it is contained and never reaches the
// mutation caller.
func (r *Registry) SetOnChange(callback func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = callback
}

// EnableGroups enables the given group ids. Any unrecognized id fails the
// whole call before any mutation. Returns whether the enabled set changed.
func (r *Registry) EnableGroups(ids []string) (bool, error) {
	return r.mutateGroups(ids, true)
}

// DisableGroups disables the given group ids. The core group is silently
// skipped when present. Any unrecognized id fails the whole call before any
// mutation. Returns whether the enabled set changed.
func (r *Registry) DisableGroups(ids []string) (bool, error) {
	return r.mutateGroups(ids, false)
}

func (r *Registry) mutateGroups(ids []string, enable bool) (bool, error) {
	r.mu.Lock()

	// Validate everything up front so a bad id leaves the set untouched.
	for _, id := range ids {
		if !containsString(r.groupOrder, id) {
			r.mu.Unlock()
			return false, fmt.Errorf("unknown group %q", id)
		}
	}

	changed := false
	for _, id := range ids {
		if enable {
			if _, already := r.enabled[id]; !already {
				r.enabled[id] = struct{}{}
				changed = true
			}
		} else {
			if id == CoreGroup {
				continue
			}
			if _, present := r.enabled[id]; present {
				delete(r.enabled, id)
				changed = true
			}
		}
	}

	callback := r.onChange
	r.mu.Unlock()

	if changed {
		logging.Info("Registry", "Enabled group set changed (enable=%v, ids=%v)", enable, ids)
		if callback != nil {
			invokeChangeCallback(callback)
		}
	}

	return changed, nil
}

// invokeChangeCallback runs the change callback, containing any panic so a
// transport failure cannot corrupt registry state or surface to the caller.
func invokeChangeCallback(callback func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Registry", fmt.Errorf("%v", rec), "Change callback panicked")
		}
	}()
	callback()
}

// EnabledDescriptors returns descriptors whose group is enabled, in stable
// registration order.
func (r *Registry) EnabledDescriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if _, on := r.enabled[d.Group]; on {
			result = append(result, d)
		}
	}
	return result
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, exists := r.byName[name]
	if !exists {
		return Descriptor{}, false
	}
	return r.descriptors[i], true
}

// GroupEnabled reports whether the given group id is currently enabled.
func (r *Registry) GroupEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, on := r.enabled[id]
	return on
}

// Groups returns all known groups with their enabled state, in the order
// their first descriptor was registered.
func (r *Registry) Groups() []GroupStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]GroupStatus, 0, len(r.groupOrder))
	for _, id := range r.groupOrder {
		_, on := r.enabled[id]
		result = append(result, GroupStatus{ID: id, Enabled: on})
	}
	return result
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
