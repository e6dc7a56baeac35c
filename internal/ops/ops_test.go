package ops

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govgate/internal/auth"
	"govgate/internal/dispatch"
	"govgate/internal/platform"
	"govgate/internal/registry"
	"govgate/internal/telemetry"
)

type fakeInvoker struct {
	token     string
	service   string
	operation string
	payload   map[string]interface{}
	response  json.RawMessage
	err       error
}

func (f *fakeInvoker) Invoke(ctx context.Context, token, service, operation string, payload interface{}) (json.RawMessage, error) {
	f.token = token
	f.service = service
	f.operation = operation
	f.payload, _ = payload.(map[string]interface{})
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeAPI struct {
	logins int
}

func (f *fakeAPI) Login(ctx context.Context, tenantRoot string, creds platform.Credentials) (string, error) {
	f.logins++
	return "session-token", nil
}

func (f *fakeAPI) AccountRoles(ctx context.Context, token string) ([]platform.Role, error) {
	return []platform.Role{{Name: "platform-user", TenantRoot: "gov"}}, nil
}

func (f *fakeAPI) GrantRoles(ctx context.Context, token string, roles []platform.Role) error {
	return nil
}

func newDeps(t *testing.T) (Deps, *fakeInvoker) {
	t.Helper()

	journal, err := telemetry.OpenJournal(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	resolver, err := auth.NewResolver(
		[]auth.Environment{
			{Name: "staging", BaseURL: "https://staging.example", DefaultTenantRoot: "gov"},
			{Name: "production", BaseURL: "https://prod.example", DefaultTenantRoot: "gov"},
		},
		"staging",
		func(string) auth.API { return &fakeAPI{} },
	)
	require.NoError(t, err)

	invoker := &fakeInvoker{response: json.RawMessage(`{"entries": []}`)}
	deps := Deps{
		Registry: registry.New(),
		Recorder: telemetry.NewRecorder(journal, nil),
		Resolver: resolver,
		Invoker:  func() Invoker { return invoker },
		Version:  "test",
	}
	require.NoError(t, RegisterAll(deps))
	return deps, invoker
}

func TestRegisterAll_CatalogueShape(t *testing.T) {
	deps, _ := newDeps(t)

	expected := map[string]string{
		"platform_describe":       registry.CoreGroup,
		"list_groups":             registry.CoreGroup,
		"enable_groups":           registry.CoreGroup,
		"disable_groups":          registry.CoreGroup,
		"session_checkpoint":      registry.CoreGroup,
		"auth_login":              registry.CoreGroup,
		"auth_status":             registry.CoreGroup,
		"auth_switch_environment": registry.CoreGroup,
		"registry_search":         "registry",
		"registry_entry_get":      "registry",
		"registry_entry_update":   "registry",
		"document_list":           "documents",
		"document_get":            "documents",
		"document_submit":         "documents",
		"report_run":              "reports",
		"report_status":           "reports",
	}
	for name, group := range expected {
		descriptor, found := deps.Registry.Get(name)
		require.True(t, found, "operation %s not registered", name)
		assert.Equal(t, group, descriptor.Group, "operation %s", name)
	}
}

func TestRegisterAll_WriteOperationsAnnotated(t *testing.T) {
	deps, _ := newDeps(t)

	for _, name := range []string{"registry_entry_update", "document_submit", "report_run"} {
		descriptor, found := deps.Registry.Get(name)
		require.True(t, found)
		assert.Equal(t, registry.RiskWrite, descriptor.Risk)
		assert.Contains(t, descriptor.Tool.Description, "modifies platform data")
	}
}

func TestRegisterAll_AuthResultsMarkedSensitive(t *testing.T) {
	deps, _ := newDeps(t)

	for _, name := range []string{"auth_login", "auth_status"} {
		descriptor, found := deps.Registry.Get(name)
		require.True(t, found)
		assert.True(t, descriptor.SensitiveResult, "%s result carries auth material", name)
	}

	descriptor, found := deps.Registry.Get("registry_search")
	require.True(t, found)
	assert.False(t, descriptor.SensitiveResult)
}

func TestPlatformDescribe_ListsAvailableGroups(t *testing.T) {
	deps, _ := newDeps(t)

	result, err := deps.platformDescribe(context.Background(), nil)
	require.NoError(t, err)

	assert.Contains(t, result.Text, "core")
	assert.Contains(t, result.Text, "enable_groups")
	assert.Contains(t, result.Text, "documents")
	assert.Contains(t, result.Text, "staging")
}

func TestEnableDisableGroups(t *testing.T) {
	deps, _ := newDeps(t)

	result, err := deps.enableGroups(context.Background(), map[string]interface{}{
		"ids": []interface{}{"documents", "reports"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "now advertised")
	assert.True(t, deps.Registry.GroupEnabled("documents"))
	assert.True(t, deps.Registry.GroupEnabled("reports"))

	result, err = deps.enableGroups(context.Background(), map[string]interface{}{
		"ids": []interface{}{"documents"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "unchanged")

	result, err = deps.disableGroups(context.Background(), map[string]interface{}{
		"ids": []interface{}{"reports"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "no longer advertised")
	assert.False(t, deps.Registry.GroupEnabled("reports"))

	_, err = deps.enableGroups(context.Background(), map[string]interface{}{
		"ids": []interface{}{"no_such_group"},
	})
	assert.Error(t, err)

	_, err = deps.enableGroups(context.Background(), map[string]interface{}{})
	assert.Error(t, err, "ids is required")
}

func TestSessionCheckpoint(t *testing.T) {
	deps, _ := newDeps(t)
	ctx := dispatch.WithSession(context.Background(), "s1")

	deps.Recorder.RecordCall("s1", "registry_search", nil)

	result, err := deps.sessionCheckpoint(ctx, map[string]interface{}{
		"summary": "looked up two entries",
		"messages": []interface{}{
			map[string]interface{}{"role": "user", "content": "find the entry"},
			map[string]interface{}{"role": "assistant", "content": "found it"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Checkpoint recorded")

	_, err = deps.sessionCheckpoint(ctx, map[string]interface{}{"summary": "   "})
	assert.Error(t, err, "blank summary fails validation")
}

func TestAuthLifecycle(t *testing.T) {
	deps, _ := newDeps(t)

	result, err := deps.authStatus(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Not authenticated")

	result, err = deps.authLogin(context.Background(), map[string]interface{}{
		"username": "clerk",
		"password": "hunter2",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Logged in to staging")

	result, err = deps.authStatus(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Authenticated to staging")

	result, err = deps.authSwitchEnvironment(context.Background(), map[string]interface{}{
		"name": "production",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "production")
	assert.False(t, deps.Resolver.Authenticated(), "switching discards authentication")

	_, err = deps.authSwitchEnvironment(context.Background(), map[string]interface{}{
		"name": "no_such_env",
	})
	assert.Error(t, err)

	_, err = deps.authLogin(context.Background(), map[string]interface{}{"username": "clerk"})
	assert.Error(t, err, "password is required")
}

func TestServiceHandlers_BuildInvokePayloads(t *testing.T) {
	deps, invoker := newDeps(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		handler   registry.HandlerFunc
		args      map[string]interface{}
		service   string
		operation string
		payload   map[string]interface{}
	}{
		{
			name:      "registry search with page size",
			handler:   deps.registrySearch,
			args:      map[string]interface{}{"query": "smith", "page_size": float64(25)},
			service:   "registry",
			operation: "search",
			payload:   map[string]interface{}{"query": "smith", "pageSize": 25},
		},
		{
			name:      "registry entry get",
			handler:   deps.registryEntryGet,
			args:      map[string]interface{}{"entry_id": "e-42"},
			service:   "registry",
			operation: "entry_get",
			payload:   map[string]interface{}{"entryId": "e-42"},
		},
		{
			name:    "registry entry update",
			handler: deps.registryEntryUpdate,
			args: map[string]interface{}{
				"entry_id": "e-42",
				"fields":   map[string]interface{}{"status": "archived"},
			},
			service:   "registry",
			operation: "entry_update",
			payload: map[string]interface{}{
				"entryId": "e-42",
				"fields":  map[string]interface{}{"status": "archived"},
			},
		},
		{
			name:      "document list filtered",
			handler:   deps.documentList,
			args:      map[string]interface{}{"category": "permits", "page_token": "tok"},
			service:   "documents",
			operation: "list",
			payload:   map[string]interface{}{"category": "permits", "pageToken": "tok"},
		},
		{
			name:      "document get",
			handler:   deps.documentGet,
			args:      map[string]interface{}{"document_id": "d-1"},
			service:   "documents",
			operation: "get",
			payload:   map[string]interface{}{"documentId": "d-1"},
		},
		{
			name:    "document submit",
			handler: deps.documentSubmit,
			args: map[string]interface{}{
				"category": "permits",
				"content":  map[string]interface{}{"applicant": "J. Smith"},
			},
			service:   "documents",
			operation: "submit",
			payload: map[string]interface{}{
				"category": "permits",
				"content":  map[string]interface{}{"applicant": "J. Smith"},
			},
		},
		{
			name:    "report run with parameters",
			handler: deps.reportRun,
			args: map[string]interface{}{
				"report_id":  "monthly",
				"parameters": map[string]interface{}{"month": "2026-08"},
			},
			service:   "reports",
			operation: "run",
			payload: map[string]interface{}{
				"reportId":   "monthly",
				"parameters": map[string]interface{}{"month": "2026-08"},
			},
		},
		{
			name:      "report status",
			handler:   deps.reportStatus,
			args:      map[string]interface{}{"job_id": "j-7"},
			service:   "reports",
			operation: "status",
			payload:   map[string]interface{}{"jobId": "j-7"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tc.handler(ctx, tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.service, invoker.service)
			assert.Equal(t, tc.operation, invoker.operation)
			assert.Equal(t, tc.payload, invoker.payload)
			assert.NotNil(t, result.Data, "decoded response is returned")
		})
	}
}

func TestServiceHandlers_RequiredParameters(t *testing.T) {
	deps, _ := newDeps(t)
	ctx := context.Background()

	_, err := deps.registrySearch(ctx, map[string]interface{}{})
	assert.Error(t, err)
	_, err = deps.registryEntryUpdate(ctx, map[string]interface{}{"entry_id": "e-1"})
	assert.Error(t, err, "fields is required")
	_, err = deps.documentSubmit(ctx, map[string]interface{}{"category": "permits"})
	assert.Error(t, err, "content is required")
	_, err = deps.reportStatus(ctx, map[string]interface{}{})
	assert.Error(t, err)
}

func TestInvokeService_PropagatesRemoteErrors(t *testing.T) {
	deps, invoker := newDeps(t)
	invoker.err = errors.New("service unavailable")

	_, err := deps.registryEntryGet(context.Background(), map[string]interface{}{"entry_id": "e-1"})
	assert.ErrorContains(t, err, "service unavailable")
}
