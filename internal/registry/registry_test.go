package registry

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor(name, group string) Descriptor {
	return Descriptor{
		Tool:  mcp.NewTool(name, mcp.WithDescription("test operation "+name)),
		Group: group,
		Risk:  RiskRead,
		Handler: func(ctx context.Context, args map[string]interface{}) (*Result, error) {
			return &Result{Text: "ok"}, nil
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.Register(testDescriptor("platform_describe", CoreGroup)))
	require.NoError(t, r.Register(testDescriptor("registry_search", "registry")))
	require.NoError(t, r.Register(testDescriptor("document_list", "documents")))
	require.NoError(t, r.Register(testDescriptor("registry_entry_get", "registry")))
	return r
}

func TestRegister_DuplicateName(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDescriptor("registry_search", "registry")))

	err := r.Register(testDescriptor("registry_search", "documents"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegister_Validation(t *testing.T) {
	r := New()

	assert.Error(t, r.Register(Descriptor{Group: "registry"}))

	d := testDescriptor("x", "")
	assert.Error(t, r.Register(d))

	d = testDescriptor("y", "registry")
	d.Handler = nil
	assert.Error(t, r.Register(d))
}

func TestEnabledDescriptors_StableOrder(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.EnableGroups([]string{"registry", "documents"})
	require.NoError(t, err)

	var names []string
	for _, d := range r.EnabledDescriptors() {
		names = append(names, d.Name())
	}
	// Registration order, not group order.
	assert.Equal(t, []string{"platform_describe", "registry_search", "document_list", "registry_entry_get"}, names)
}

func TestEnableGroups_UnknownIDFailsBeforeMutation(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.EnableGroups([]string{"registry", "nonsense"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown group")

	// The recognized half of the request must not have been applied.
	assert.False(t, r.GroupEnabled("registry"))
}

func TestDisableGroups_CoreSilentlySkipped(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.EnableGroups([]string{"registry"})
	require.NoError(t, err)

	changed, err := r.DisableGroups([]string{CoreGroup, "registry"})
	require.NoError(t, err)
	assert.True(t, changed)

	assert.True(t, r.GroupEnabled(CoreGroup))
	assert.False(t, r.GroupEnabled("registry"))
}

func TestChangeSignal_OncePerCallAndOnlyOnChange(t *testing.T) {
	r := newTestRegistry(t)

	fired := 0
	r.SetOnChange(func() { fired++ })

	changed, err := r.EnableGroups([]string{"registry", "documents"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, fired, "one mutation call fires at most one signal")

	// Idempotent re-enable produces no signal.
	changed, err = r.EnableGroups([]string{"registry"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, fired)

	// Disabling only core changes nothing.
	changed, err = r.DisableGroups([]string{CoreGroup})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, fired)

	changed, err = r.DisableGroups([]string{"documents"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, fired)
}

func TestChangeSignal_CallbackPanicContained(t *testing.T) {
	r := newTestRegistry(t)
	r.SetOnChange(func() { panic("transport exploded") })

	require.NotPanics(t, func() {
		changed, err := r.EnableGroups([]string{"registry"})
		require.NoError(t, err)
		assert.True(t, changed)
	})

	// Registry state survived the callback failure.
	assert.True(t, r.GroupEnabled("registry"))

	// And the registry remains usable from the callback's perspective.
	r.SetOnChange(func() {
		assert.NotEmpty(t, r.EnabledDescriptors())
	})
	_, err := r.DisableGroups([]string{"registry"})
	require.NoError(t, err)
}

func TestGroups_ReportsAllKnownGroups(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.EnableGroups([]string{"documents"})
	require.NoError(t, err)

	groups := r.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, GroupStatus{ID: CoreGroup, Enabled: true}, groups[0])
	assert.Equal(t, GroupStatus{ID: "registry", Enabled: false}, groups[1])
	assert.Equal(t, GroupStatus{ID: "documents", Enabled: true}, groups[2])
}

func TestGet_UnknownOperation(t *testing.T) {
	r := newTestRegistry(t)

	_, found := r.Get("no_such_operation")
	assert.False(t, found)

	d, found := r.Get("registry_search")
	require.True(t, found)
	assert.Equal(t, "registry", d.Group)
}
