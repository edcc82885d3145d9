package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mneme/internal/config"
	"mneme/internal/domain"
)

func passiveTool(name string) Tool {
	return Tool{
		Metadata: domain.ToolMetadata{Name: name, CapabilityLevel: domain.CapabilityPassive},
		Handler: func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
			return domain.ToolResult{Content: "ok"}, nil
		},
	}
}

func TestInvoke_UnknownToolIsDenied(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierFull}, nil)
	_, denied, err := r.Invoke(context.Background(), "nope", nil)
	require.NoError(t, err)
	require.True(t, denied)
}

func TestInvoke_BlockedToolNeverRuns(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierFull}, nil)
	require.NoError(t, r.Register(Tool{
		Metadata: domain.ToolMetadata{Name: "nuke", CapabilityLevel: domain.CapabilityBlocked},
		Handler: func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
			t.Fatal("blocked tool handler must never run")
			return domain.ToolResult{}, nil
		},
	}))
	_, denied, err := r.Invoke(context.Background(), "nuke", nil)
	require.NoError(t, err)
	require.True(t, denied)
}

func TestInvoke_ShellCommandOutsidePathAllowlistUnderRestrictedTierIsDenied(t *testing.T) {
	r := New(config.SafetyConfig{
		Tier:          config.SafetyTierRestricted,
		PathAllowlist: []string{"/workspace/sandbox"},
	}, nil)
	require.NoError(t, r.Register(shellCommandTool()))

	result, denied, err := r.Invoke(context.Background(), "shell_command", map[string]any{
		"command": "rm -rf /",
		"dir":     "/etc",
	})
	require.NoError(t, err)
	require.True(t, denied, "command outside the path allowlist must be denied, not executed")
	require.True(t, result.IsError)
}

func TestInvoke_ActiveToolDeniedAboveTierCeiling(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierReadOnly}, nil)
	require.NoError(t, r.Register(Tool{
		Metadata: domain.ToolMetadata{Name: "act", CapabilityLevel: domain.CapabilityActive},
		Handler:  passiveTool("act").Handler,
	}))
	_, denied, err := r.Invoke(context.Background(), "act", nil)
	require.NoError(t, err)
	require.True(t, denied, "an Active tool must be denied under a read_only tier")
}

func TestInvoke_DestructiveToolRequiresConfirmation(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierFull, RequireConfirmation: true}, nil)
	require.NoError(t, r.Register(Tool{
		Metadata: domain.ToolMetadata{Name: "delete", CapabilityLevel: domain.CapabilityDestructive},
		Handler: func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
			return domain.ToolResult{Content: "deleted"}, nil
		},
	}))

	_, denied, err := r.Invoke(context.Background(), "delete", map[string]any{})
	require.NoError(t, err)
	require.True(t, denied)

	result, denied, err := r.Invoke(context.Background(), "delete", map[string]any{confirmedArgKey: true})
	require.NoError(t, err)
	require.False(t, denied)
	require.Equal(t, "deleted", result.Content)
}

func TestInvoke_PassiveToolRunsUnderRestrictedTier(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierRestricted}, nil)
	require.NoError(t, r.Register(passiveTool("ping")))
	result, denied, err := r.Invoke(context.Background(), "ping", nil)
	require.NoError(t, err)
	require.False(t, denied)
	require.Equal(t, "ok", result.Content)
}

func TestInvoke_SchemaValidationPrecedesGate(t *testing.T) {
	r := New(config.SafetyConfig{
		Tier:          config.SafetyTierRestricted,
		PathAllowlist: []string{"/workspace/sandbox"},
	}, nil)
	require.NoError(t, r.Register(Tool{
		Metadata: domain.ToolMetadata{
			Name:            "needs_path_arg",
			CapabilityLevel: domain.CapabilityDestructive,
			InputSchema:     map[string]any{"required": []string{"path"}},
		},
		PathArgs: []string{"path"},
		Handler: func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
			return domain.ToolResult{Content: "ok"}, nil
		},
	}))

	// The tool is Destructive, above the restricted tier, so the gate would
	// deny it as well; the required "path" argument is also missing, and the
	// denial must cite the schema, not the gate.
	result, denied, err := r.Invoke(context.Background(), "needs_path_arg", map[string]any{})
	require.NoError(t, err)
	require.True(t, denied)
	require.Contains(t, result.Content, "missing required argument")
}

func TestInvoke_MissingRequiredArgumentIsDenied(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierFull}, nil)
	require.NoError(t, r.Register(Tool{
		Metadata: domain.ToolMetadata{
			Name:            "needs_arg",
			CapabilityLevel: domain.CapabilityPassive,
			InputSchema:     map[string]any{"required": []string{"query"}},
		},
		Handler: func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
			return domain.ToolResult{Content: "ok"}, nil
		},
	}))
	_, denied, err := r.Invoke(context.Background(), "needs_arg", map[string]any{})
	require.NoError(t, err)
	require.True(t, denied)
}

func TestInvoke_WebFetchOutsideDomainAllowlistIsDenied(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierFull, DomainAllowlist: []string{"example.com"}}, nil)
	require.NoError(t, r.Register(webFetchTool()))
	_, denied, err := r.Invoke(context.Background(), "web_fetch", map[string]any{"url": "https://evil.test/x"})
	require.NoError(t, err)
	require.True(t, denied)
}

func TestCatalogue_IsSortedAndReflectsHotRegistration(t *testing.T) {
	r := New(config.SafetyConfig{Tier: config.SafetyTierFull}, nil)
	require.NoError(t, r.Register(passiveTool("zeta")))
	require.Len(t, r.Catalogue(), 1)

	require.NoError(t, r.Register(passiveTool("alpha")))
	cat := r.Catalogue()
	require.Len(t, cat, 2)
	require.Equal(t, "alpha", cat[0].Name)
	require.Equal(t, "zeta", cat[1].Name)
}

func TestPathAllowed_EmptyAllowlistDeniesEverything(t *testing.T) {
	require.False(t, pathAllowed("/anywhere", nil))
}

func TestPathAllowed_SubdirectoryOfAllowedPrefixIsAllowed(t *testing.T) {
	require.True(t, pathAllowed("/workspace/sandbox/sub/file.txt", []string{"/workspace/sandbox"}))
	require.False(t, pathAllowed("/workspace/sandbox-evil/file.txt", []string{"/workspace/sandbox"}))
}

func TestDomainAllowed_SubdomainOfAllowedDomainIsAllowed(t *testing.T) {
	require.True(t, domainAllowed("https://api.example.com/v1", []string{"example.com"}))
	require.False(t, domainAllowed("https://example.com.evil.test/v1", []string{"example.com"}))
}
