package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"mneme/internal/domain"
)

// RegisterBuiltins wires the organism's default tool catalogue: a shell
// command tool, a file-read tool, and a web-fetch tool, adapted from the
// manifold server's cliTool/fileTool/WebContentArgs (cmd/mcp-manifold/tools.go)
// down to the handful of capabilities the organism actually needs, each
// declared at the capability level spec.md §4.9 assigns it.
func RegisterBuiltins(r *Registry) error {
	for _, t := range []Tool{
		shellCommandTool(),
		readFileTool(),
		webFetchTool(),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func shellCommandTool() Tool {
	return Tool{
		Metadata: domain.ToolMetadata{
			Name:        "shell_command",
			Description: "Runs a shell command in a working directory inside the sandbox.",
			InputSchema: map[string]any{
				"required": []string{"command", "dir"},
				"properties": map[string]any{
					"command": map[string]any{"type": "string"},
					"dir":     map[string]any{"type": "string"},
				},
			},
			CapabilityLevel: domain.CapabilityDestructive,
		},
		PathArgs: []string{"dir"},
		Handler: func(ctx context.Context, arguments map[string]any) (domain.ToolResult, error) {
			command, _ := arguments["command"].(string)
			dir, _ := arguments["dir"].(string)
			if strings.TrimSpace(command) == "" {
				return domain.ToolResult{Content: "command must not be empty", IsError: true}, nil
			}

			runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "sh", "-c", command)
			cmd.Dir = dir
			output, err := cmd.CombinedOutput()
			if err != nil {
				return domain.ToolResult{Content: fmt.Sprintf("command failed: %v\n%s", err, output), IsError: true}, nil
			}
			return domain.ToolResult{Content: string(output)}, nil
		},
	}
}

func readFileTool() Tool {
	return Tool{
		Metadata: domain.ToolMetadata{
			Name:        "read_file",
			Description: "Reads the full contents of a file inside the sandbox.",
			InputSchema: map[string]any{
				"required": []string{"path"},
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
			},
			CapabilityLevel: domain.CapabilityPassive,
		},
		PathArgs: []string{"path"},
		Handler: func(ctx context.Context, arguments map[string]any) (domain.ToolResult, error) {
			path, _ := arguments["path"].(string)
			data, err := os.ReadFile(path)
			if err != nil {
				return domain.ToolResult{Content: fmt.Sprintf("read failed: %v", err), IsError: true}, nil
			}
			return domain.ToolResult{Content: string(data)}, nil
		},
	}
}

func webFetchTool() Tool {
	return Tool{
		Metadata: domain.ToolMetadata{
			Name:        "web_fetch",
			Description: "Fetches a URL's body as text; the host must be in the domain allowlist.",
			InputSchema: map[string]any{
				"required": []string{"url"},
				"properties": map[string]any{
					"url": map[string]any{"type": "string"},
				},
			},
			CapabilityLevel: domain.CapabilityActive,
		},
		URLArgs: []string{"url"},
		Handler: func(ctx context.Context, arguments map[string]any) (domain.ToolResult, error) {
			raw, _ := arguments["url"].(string)
			client := &http.Client{Timeout: 10 * time.Second}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
			if err != nil {
				return domain.ToolResult{Content: fmt.Sprintf("invalid url: %v", err), IsError: true}, nil
			}
			resp, err := client.Do(req)
			if err != nil {
				return domain.ToolResult{Content: fmt.Sprintf("fetch failed: %v", err), IsError: true}, nil
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return domain.ToolResult{Content: fmt.Sprintf("reading response: %v", err), IsError: true}, nil
			}
			if resp.StatusCode != http.StatusOK {
				return domain.ToolResult{Content: fmt.Sprintf("status %d: %s", resp.StatusCode, body), IsError: true}, nil
			}
			return domain.ToolResult{Content: string(body)}, nil
		},
	}
}
