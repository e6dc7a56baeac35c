// Package auth turns a requested tenant plus credentials into a working
// authenticated platform context. Resolution walks an ordered candidate
// list of tenant roots and repairs missing authorization as an explicit,
// observable step of the result.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"govgate/internal/platform"
	"govgate/pkg/logging"
)

// ErrAuthenticationFailed is the single aggregated failure returned when no
// candidate tenant root accepts the credentials. Per-candidate detail is
// never surfaced to callers.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrNoCredentials is returned by Ensure when no credential source is
// configured for lazy login.
var ErrNoCredentials = errors.New("no credential source configured")

// tenantSeparator splits a tenant leaf from its root.
const tenantSeparator = "."

// API is the slice of the platform client the resolver depends on.
type API interface {
	Login(ctx context.Context, tenantRoot string, creds platform.Credentials) (string, error)
	AccountRoles(ctx context.Context, token string) ([]platform.Role, error)
	GrantRoles(ctx context.Context, token string, roles []platform.Role) error
}

// Environment describes one platform environment the resolver can target.
type Environment struct {
	Name              string
	BaseURL           string
	DefaultTenantRoot string
}

// Context is the resolved authenticated state. It lives only in process
// memory and is cleared wholesale on environment switch.
type Context struct {
	Environment string
	Token       string
	TenantRoot  string
	Roles       []platform.Role
}

// LoginResult reports a successful resolution, including any authorization
// repair that happened along the way.
type LoginResult struct {
	Context       Context
	RequestedRoot string
	RolesRepaired []string
}

// CredentialSource supplies credentials for lazy login.
type CredentialSource func() (platform.Credentials, error)

// ClientFactory builds a platform API for an environment base URL.
type ClientFactory func(baseURL string) API

// Resolver is the multi-tenant authentication resolver.
type Resolver struct {
	mu            sync.RWMutex
	environments  map[string]Environment
	current       Environment
	override      string // tenant-root override for lazy logins
	authed        *Context
	observedRoots []string // roots that accepted a login before
	credentials   CredentialSource
	clientFactory ClientFactory
	client        API
}

// NewResolver creates a resolver over the given environments, starting on
// the named one.
func NewResolver(environments []Environment, current string, factory ClientFactory) (*Resolver, error) {
	if factory == nil {
		factory = func(baseURL string) API { return platform.NewClient(baseURL) }
	}

	byName := make(map[string]Environment, len(environments))
	for _, env := range environments {
		byName[env.Name] = env
	}
	selected, exists := byName[current]
	if !exists {
		return nil, fmt.Errorf("unknown environment %q", current)
	}

	return &Resolver{
		environments:  byName,
		current:       selected,
		clientFactory: factory,
		client:        factory(selected.BaseURL),
	}, nil
}

// SetCredentialSource configures where Ensure gets credentials from.
func (r *Resolver) SetCredentialSource(source CredentialSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials = source
}

// TenantRoot derives the root candidate from a requested tenant by
// splitting on the first separator: "gov.metro" resolves to "gov".
func TenantRoot(tenant string) string {
	if i := strings.Index(tenant, tenantSeparator); i >= 0 {
		return tenant[:i]
	}
	return tenant
}

// Login resolves the requested tenant into an authenticated context. The
// candidate list is tried in order: requested root, environment default
// root, then previously observed roots. The first success wins; if every
// candidate fails the caller gets one aggregated failure.
func (r *Resolver) Login(ctx context.Context, requestedTenant string, creds platform.Credentials) (LoginResult, error) {
	r.mu.RLock()
	env := r.current
	client := r.client
	override := r.override
	observed := append([]string(nil), r.observedRoots...)
	r.mu.RUnlock()

	if requestedTenant == "" {
		requestedTenant = override
	}
	requestedRoot := TenantRoot(requestedTenant)
	candidates := candidateRoots(requestedRoot, env.DefaultTenantRoot, observed)
	if len(candidates) == 0 {
		return LoginResult{}, fmt.Errorf("%w: no tenant root to attempt for environment %s", ErrAuthenticationFailed, env.Name)
	}

	var token, successRoot string
	for _, root := range candidates {
		t, err := client.Login(ctx, root, creds)
		if err != nil {
			// Candidate detail stays at debug level; it never reaches the
			// aggregated error.
			logging.Debug("AuthResolver", "Login candidate %q failed: %v", root, err)
			continue
		}
		token = t
		successRoot = root
		break
	}
	if token == "" {
		return LoginResult{}, fmt.Errorf("%w: no working tenant root for %q in environment %s",
			ErrAuthenticationFailed, requestedTenant, env.Name)
	}

	roles, err := client.AccountRoles(ctx, token)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	result := LoginResult{RequestedRoot: requestedRoot}
	if requestedRoot != "" && successRoot != requestedRoot && !hasRootAuthorization(roles, requestedRoot) {
		repaired, err := r.repairAuthorization(ctx, client, token, requestedRoot)
		if err != nil {
			return LoginResult{}, fmt.Errorf("repair authorization for root %q: %w", requestedRoot, err)
		}
		result.RolesRepaired = repaired
		roles, err = client.AccountRoles(ctx, token)
		if err != nil {
			return LoginResult{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
	}

	authed := Context{
		Environment: env.Name,
		Token:       token,
		TenantRoot:  successRoot,
		Roles:       roles,
	}
	result.Context = authed

	r.mu.Lock()
	r.authed = &authed
	r.recordObservedRootLocked(successRoot)
	r.mu.Unlock()

	logging.Info("AuthResolver", "Authenticated against root %q in environment %s (repaired: %v)",
		successRoot, env.Name, result.RolesRepaired)
	return result, nil
}

// repairAuthorization grants the platform's standard role bundle tagged to
// the requested root. Re-granting roles the account already holds is a
// platform-side no-op, so the repair is idempotent.
func (r *Resolver) repairAuthorization(ctx context.Context, client API, token, requestedRoot string) ([]string, error) {
	roles := make([]platform.Role, 0, len(platform.StandardRoleBundle))
	names := make([]string, 0, len(platform.StandardRoleBundle))
	for _, name := range platform.StandardRoleBundle {
		roles = append(roles, platform.Role{Name: name, TenantRoot: requestedRoot})
		names = append(names, name)
	}
	if err := client.GrantRoles(ctx, token, roles); err != nil {
		return nil, err
	}
	return names, nil
}

// Ensure performs a lazy login with the configured credential source when
// no authenticated context exists yet.
func (r *Resolver) Ensure(ctx context.Context) error {
	r.mu.RLock()
	authed := r.authed != nil
	source := r.credentials
	r.mu.RUnlock()

	if authed {
		return nil
	}
	if source == nil {
		return ErrNoCredentials
	}
	creds, err := source()
	if err != nil {
		return fmt.Errorf("credential source: %w", err)
	}
	_, err = r.Login(ctx, "", creds)
	return err
}

// Authenticated reports whether a working context exists.
func (r *Resolver) Authenticated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authed != nil
}

// Current returns the authenticated context, if any.
func (r *Resolver) Current() (Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.authed == nil {
		return Context{}, false
	}
	return *r.authed, true
}

// Token returns the current bearer credential for handler use.
func (r *Resolver) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.authed == nil {
		return ""
	}
	return r.authed.Token
}

// Environment returns the currently selected environment.
func (r *Resolver) Environment() Environment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SetTenantOverride pins the tenant root used by lazy logins.
func (r *Resolver) SetTenantOverride(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = root
}

// TenantOverride returns the pinned tenant root, if any.
func (r *Resolver) TenantOverride() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.override
}

// SwitchEnvironment selects another environment and discards the cached
// context wholesale: token, roles, override, and observed roots all go, so
// no stale state can leak across environments.
func (r *Resolver) SwitchEnvironment(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	env, exists := r.environments[name]
	if !exists {
		return fmt.Errorf("unknown environment %q", name)
	}

	r.current = env
	r.client = r.clientFactory(env.BaseURL)
	r.authed = nil
	r.override = ""
	r.observedRoots = nil

	logging.Info("AuthResolver", "Switched to environment %s, cleared authenticated context", name)
	return nil
}

func (r *Resolver) recordObservedRootLocked(root string) {
	for _, existing := range r.observedRoots {
		if existing == root {
			return
		}
	}
	r.observedRoots = append(r.observedRoots, root)
}

// candidateRoots builds the ordered, deduplicated candidate list.
func candidateRoots(requestedRoot, defaultRoot string, observed []string) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(root string) {
		if root == "" || seen[root] {
			return
		}
		seen[root] = true
		candidates = append(candidates, root)
	}
	add(requestedRoot)
	add(defaultRoot)
	for _, root := range observed {
		add(root)
	}
	return candidates
}

func hasRootAuthorization(roles []platform.Role, root string) bool {
	for _, role := range roles {
		if role.TenantRoot == root {
			return true
		}
	}
	return false
}
