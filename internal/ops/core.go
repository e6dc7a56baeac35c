package ops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"govgate/internal/dispatch"
	"govgate/internal/platform"
	"govgate/internal/registry"
	"govgate/internal/telemetry"
)

// registerCoreOps wires the always-on operations: gateway introspection,
// group toggling, session checkpoints, and authentication controls.
func registerCoreOps(deps Deps) error {
	descriptors := []registry.Descriptor{
		{
			Tool: mcp.NewTool("platform_describe",
				mcp.WithDescription("Describe the gateway: current environment, available operation groups, and how to enable more"),
			),
			Group:   registry.CoreGroup,
			Risk:    registry.RiskRead,
			Handler: deps.platformDescribe,
		},
		{
			Tool: mcp.NewTool("list_groups",
				mcp.WithDescription("List all operation groups with their enabled state"),
			),
			Group:   registry.CoreGroup,
			Risk:    registry.RiskRead,
			Handler: deps.listGroups,
		},
		{
			Tool: mcp.NewTool("enable_groups",
				mcp.WithDescription("Enable one or more operation groups, expanding the advertised tool set"),
				mcp.WithArray("ids",
					mcp.Required(),
					mcp.Description("Group ids to enable"),
					mcp.Items(map[string]interface{}{"type": "string"}),
				),
			),
			Group:   registry.CoreGroup,
			Risk:    registry.RiskRead,
			Handler: deps.enableGroups,
		},
		{
			Tool: mcp.NewTool("disable_groups",
				mcp.WithDescription("Disable one or more operation groups, shrinking the advertised tool set"),
				mcp.WithArray("ids",
					mcp.Required(),
					mcp.Description("Group ids to disable"),
					mcp.Items(map[string]interface{}{"type": "string"}),
				),
			),
			Group:   registry.CoreGroup,
			Risk:    registry.RiskRead,
			Handler: deps.disableGroups,
		},
		{
			Tool: mcp.NewTool("session_checkpoint",
				mcp.WithDescription("Record a checkpoint summarizing recent work, resetting the reminder counter"),
				mcp.WithString("summary",
					mcp.Required(),
					mcp.Description("Summary of the work since the last checkpoint"),
				),
				mcp.WithArray("messages",
					mcp.Description("Optional conversation turns to persist, each {role, content}"),
					mcp.Items(map[string]interface{}{"type": "object"}),
				),
			),
			Group:   registry.CoreGroup,
			Risk:    registry.RiskRead,
			Handler: deps.sessionCheckpoint,
		},
		{
			Tool: mcp.NewTool("auth_login",
				mcp.WithDescription("Authenticate against the current environment, optionally for a specific tenant"),
				mcp.WithString("username",
					mcp.Required(),
					mcp.Description("Account username"),
				),
				mcp.WithString("password",
					mcp.Required(),
					mcp.Description("Account password"),
				),
				mcp.WithString("tenant",
					mcp.Description("Tenant to log in for; defaults to the environment's tenant root"),
				),
			),
			Group:           registry.CoreGroup,
			Risk:            registry.RiskRead,
			SensitiveResult: true,
			Handler:         deps.authLogin,
		},
		{
			Tool: mcp.NewTool("auth_status",
				mcp.WithDescription("Show the current authentication state"),
			),
			Group:           registry.CoreGroup,
			Risk:            registry.RiskRead,
			SensitiveResult: true,
			Handler:         deps.authStatus,
		},
		{
			Tool: mcp.NewTool("auth_switch_environment",
				mcp.WithDescription("Switch to another configured environment, discarding all authenticated state"),
				mcp.WithString("name",
					mcp.Required(),
					mcp.Description("Environment name to switch to"),
				),
			),
			Group:   registry.CoreGroup,
			Risk:    registry.RiskRead,
			Handler: deps.authSwitchEnvironment,
		},
	}

	for _, descriptor := range descriptors {
		if err := deps.Registry.Register(descriptor); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) platformDescribe(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	groups := d.Registry.Groups()

	var enabled, available []string
	for _, group := range groups {
		if group.Enabled {
			enabled = append(enabled, group.ID)
		} else {
			available = append(available, group.ID)
		}
	}
	sort.Strings(available)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Gateway to environment %q (version %s).\n", d.Resolver.Environment().Name, d.Version)
	fmt.Fprintf(&sb, "Enabled groups: %s.\n", strings.Join(enabled, ", "))
	if len(available) > 0 {
		fmt.Fprintf(&sb, "Additional groups available via enable_groups: %s.\n", strings.Join(available, ", "))
	}
	sb.WriteString("Only enabled groups expose their operations; start with list_groups to see everything.")

	return &registry.Result{
		Text: sb.String(),
		Data: map[string]interface{}{
			"environment": d.Resolver.Environment().Name,
			"version":     d.Version,
			"groups":      groups,
		},
	}, nil
}

func (d Deps) listGroups(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	groups := d.Registry.Groups()

	var sb strings.Builder
	sb.WriteString("Operation groups:\n")
	for _, group := range groups {
		state := "disabled"
		if group.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(&sb, "  %s: %s\n", group.ID, state)
	}

	return &registry.Result{Text: strings.TrimRight(sb.String(), "\n"), Data: groups}, nil
}

func (d Deps) enableGroups(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	ids := stringSliceArg(args, "ids")
	if len(ids) == 0 {
		return nil, fmt.Errorf("ids parameter is required")
	}

	changed, err := d.Registry.EnableGroups(ids)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Groups %s already enabled; tool set unchanged.", strings.Join(ids, ", "))
	if changed {
		text = fmt.Sprintf("Enabled groups %s; their operations are now advertised.", strings.Join(ids, ", "))
	}
	return &registry.Result{Text: text, Data: d.Registry.Groups()}, nil
}

func (d Deps) disableGroups(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	ids := stringSliceArg(args, "ids")
	if len(ids) == 0 {
		return nil, fmt.Errorf("ids parameter is required")
	}

	changed, err := d.Registry.DisableGroups(ids)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Groups %s already disabled; tool set unchanged.", strings.Join(ids, ", "))
	if changed {
		text = fmt.Sprintf("Disabled groups %s; their operations are no longer advertised.", strings.Join(ids, ", "))
	}
	return &registry.Result{Text: text, Data: d.Registry.Groups()}, nil
}

func (d Deps) sessionCheckpoint(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	summary, err := requiredString(args, "summary")
	if err != nil {
		return nil, err
	}

	var messages []telemetry.Message
	if raw, ok := args["messages"].([]interface{}); ok {
		for _, item := range raw {
			turn, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			messages = append(messages, telemetry.Message{
				Role:    stringArg(turn, "role"),
				Content: stringArg(turn, "content"),
			})
		}
	}

	result, err := d.Recorder.RecordCheckpoint(dispatch.SessionFromContext(ctx), summary, messages)
	if err != nil {
		return nil, err
	}

	return &registry.Result{
		Text: fmt.Sprintf("Checkpoint recorded at sequence %d covering %d recent operations.", result.Seq, len(result.RecentOps)),
		Data: result,
	}, nil
}

func (d Deps) authLogin(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	username, err := requiredString(args, "username")
	if err != nil {
		return nil, err
	}
	password, err := requiredString(args, "password")
	if err != nil {
		return nil, err
	}

	result, err := d.Resolver.Login(ctx, stringArg(args, "tenant"), platform.Credentials{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Logged in to %s as tenant root %q.", result.Context.Environment, result.Context.TenantRoot)
	if len(result.RolesRepaired) > 0 {
		text += fmt.Sprintf(" Missing roles were granted for %q: %s.", result.RequestedRoot, strings.Join(result.RolesRepaired, ", "))
	}

	return &registry.Result{
		Text: text,
		Data: map[string]interface{}{
			"environment":    result.Context.Environment,
			"tenant_root":    result.Context.TenantRoot,
			"roles":          result.Context.Roles,
			"roles_repaired": result.RolesRepaired,
		},
	}, nil
}

func (d Deps) authStatus(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	current, ok := d.Resolver.Current()
	if !ok {
		return &registry.Result{
			Text: fmt.Sprintf("Not authenticated. Current environment: %s.", d.Resolver.Environment().Name),
			Data: map[string]interface{}{"authenticated": false, "environment": d.Resolver.Environment().Name},
		}, nil
	}

	return &registry.Result{
		Text: fmt.Sprintf("Authenticated to %s as tenant root %q with %d roles.", current.Environment, current.TenantRoot, len(current.Roles)),
		Data: map[string]interface{}{
			"authenticated": true,
			"environment":   current.Environment,
			"tenant_root":   current.TenantRoot,
			"roles":         current.Roles,
		},
	}, nil
}

func (d Deps) authSwitchEnvironment(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	name, err := requiredString(args, "name")
	if err != nil {
		return nil, err
	}

	if err := d.Resolver.SwitchEnvironment(name); err != nil {
		return nil, err
	}

	return &registry.Result{
		Text: fmt.Sprintf("Switched to environment %q. Previous authentication was discarded; log in again before calling protected operations.", name),
		Data: map[string]interface{}{"environment": name},
	}, nil
}
