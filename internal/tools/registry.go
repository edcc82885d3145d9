// Package tools is the Layer 9 Tool Registry & Capability Gate: a
// declarative catalogue of named tools, each carrying its own
// domain.ToolMetadata, gated at execution time against config.SafetyConfig
// (spec.md §4.9). Grounded on intelligencedev-manifold's cmd/mcp-manifold,
// which registers each tool with a name, description, and typed argument
// struct (tools.go) against a single server (main.go); this package keeps
// that declarative shape but adds the tier/sandbox/allowlist checks the
// organism's capability model requires and the manifold server never did.
package tools

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mneme/internal/config"
	"mneme/internal/domain"
)

// Handler executes a tool's validated arguments and returns its structured
// result (spec.md §6 Tool interface: "execute(arguments) -> structured_result").
type Handler func(ctx context.Context, arguments map[string]any) (domain.ToolResult, error)

// Tool bundles a tool's declarative metadata with its handler and, where
// relevant, which argument names carry a filesystem path or a URL so the
// gate can sandbox/allowlist them without the handler's cooperation.
type Tool struct {
	Metadata domain.ToolMetadata
	Handler  Handler
	// PathArgs names arguments (when present and string-valued) that must
	// resolve inside config.SafetyConfig.PathAllowlist.
	PathArgs []string
	// URLArgs names arguments (when present and string-valued) whose host
	// must appear in config.SafetyConfig.DomainAllowlist.
	URLArgs []string
}

// capabilityRank orders capability levels from least to most dangerous.
// Blocked has no rank in the tier ceiling — it is never admitted.
func capabilityRank(level domain.CapabilityLevel) int {
	switch level {
	case domain.CapabilityPassive:
		return 0
	case domain.CapabilityActive:
		return 1
	case domain.CapabilityDestructive:
		return 2
	default:
		return 99
	}
}

// tierCeiling is the highest capability rank a safety tier admits.
func tierCeiling(tier config.SafetyTier) int {
	switch tier {
	case config.SafetyTierReadOnly:
		return capabilityRank(domain.CapabilityPassive)
	case config.SafetyTierRestricted:
		return capabilityRank(domain.CapabilityActive)
	case config.SafetyTierFull:
		return capabilityRank(domain.CapabilityDestructive)
	default:
		return capabilityRank(domain.CapabilityPassive)
	}
}

// confirmedArgKey is the reserved argument the conversation channel sets
// once a human has explicitly confirmed a Destructive tool call. The gate
// never infers confirmation from anything else.
const confirmedArgKey = "__confirmed"

// Registry is the capability-gated tool catalogue. Safe for concurrent use;
// Register may be called after Invoke has already served traffic (spec.md
// §4.9's "new tools may be hot-registered without restarting the core").
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	safety config.SafetyConfig
	log    *zap.Logger
}

// New builds an empty registry gated at the given safety configuration.
func New(safety config.SafetyConfig, log *zap.Logger) *Registry {
	return &Registry{tools: make(map[string]Tool), safety: safety, log: log}
}

// Register adds or replaces a tool. Returns an error if name is empty.
func (r *Registry) Register(tool Tool) error {
	if strings.TrimSpace(tool.Metadata.Name) == "" {
		return fmt.Errorf("tools: tool name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Metadata.Name] = tool
	return nil
}

// Catalogue returns the registered tools' metadata, sorted by name, for the
// reasoning loop to present to the language model ("the reasoning loop sees
// the full tool catalogue and dispatches by name").
func (r *Registry) Catalogue() []domain.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolMetadata, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke implements reasoning.ToolGate: validate schema first, then enforce
// the capability tier, confirmation, path sandbox, and domain allowlist,
// then run. Schema validation comes before the gate (spec.md §4.9's
// declared order) so a call that is both malformed and out-of-policy is
// rejected for the right reason. Capability enforcement happens here, at
// execution time, never earlier.
func (r *Registry) Invoke(ctx context.Context, name string, arguments map[string]any) (domain.ToolResult, bool, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return deny(fmt.Sprintf("tool %q is not registered", name)), true, nil
	}

	if err := validateSchema(tool.Metadata.InputSchema, arguments); err != nil {
		return deny(err.Error()), true, nil
	}

	if reason, denied := r.gate(tool, arguments); denied {
		if r.log != nil {
			r.log.Info("tools: denied", zap.String("tool", name), zap.String("reason", reason))
		}
		return deny(reason), true, nil
	}

	result, err := tool.Handler(ctx, arguments)
	if err != nil {
		return domain.ToolResult{}, false, fmt.Errorf("tools: executing %q: %w", name, err)
	}
	return result, false, nil
}

// gate applies the capability tier, confirmation, path sandbox, and domain
// allowlist checks that don't depend on the declared input schema.
func (r *Registry) gate(tool Tool, arguments map[string]any) (reason string, denied bool) {
	level := tool.Metadata.CapabilityLevel

	if level == domain.CapabilityBlocked {
		return fmt.Sprintf("%q is a blocked tool", tool.Metadata.Name), true
	}
	if capabilityRank(level) > tierCeiling(r.safety.Tier) {
		return fmt.Sprintf("%q requires capability %q, above safety tier %q", tool.Metadata.Name, level, r.safety.Tier), true
	}
	if level == domain.CapabilityDestructive && r.safety.RequireConfirmation && !isConfirmed(arguments) {
		return fmt.Sprintf("%q is destructive and requires explicit confirmation", tool.Metadata.Name), true
	}

	for _, argName := range tool.PathArgs {
		path, ok := stringArg(arguments, argName)
		if !ok {
			continue
		}
		if !pathAllowed(path, r.safety.PathAllowlist) {
			return fmt.Sprintf("path %q is outside the configured sandbox", path), true
		}
	}
	for _, argName := range tool.URLArgs {
		raw, ok := stringArg(arguments, argName)
		if !ok {
			continue
		}
		if !domainAllowed(raw, r.safety.DomainAllowlist) {
			return fmt.Sprintf("url %q targets a domain outside the allowlist", raw), true
		}
	}
	return "", false
}

func isConfirmed(arguments map[string]any) bool {
	confirmed, _ := arguments[confirmedArgKey].(bool)
	return confirmed
}

func stringArg(arguments map[string]any, name string) (string, bool) {
	v, ok := arguments[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// pathAllowed reports whether path resolves inside one of allowlist's
// prefixes. An empty allowlist admits nothing — deny by default.
func pathAllowed(path string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return false
	}
	clean := filepath.Clean(path)
	for _, prefix := range allowlist {
		prefix = filepath.Clean(prefix)
		if clean == prefix || strings.HasPrefix(clean, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// domainAllowed reports whether raw's host appears in allowlist. An empty
// allowlist admits nothing.
func domainAllowed(raw string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range allowlist {
		d = strings.ToLower(strings.TrimSpace(d))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// validateSchema checks declared "required" fields are present. InputSchema
// is a plain JSON-Schema-shaped map (spec.md §6); this is a deliberately
// shallow check — the organism's tools take few, simple arguments and a
// full JSON-Schema validator would be disproportionate machinery for it.
func validateSchema(schema map[string]any, arguments map[string]any) error {
	if schema == nil {
		return nil
	}
	requiredRaw, ok := schema["required"]
	if !ok {
		return nil
	}
	required, ok := requiredRaw.([]string)
	if !ok {
		if asAny, ok := requiredRaw.([]any); ok {
			for _, r := range asAny {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	var missing []string
	for _, field := range required {
		if _, present := arguments[field]; !present {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func deny(reason string) domain.ToolResult {
	return domain.ToolResult{Content: reason, IsError: true}
}
