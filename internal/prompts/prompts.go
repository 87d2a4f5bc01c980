package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*.md
var templateFS embed.FS

// TemplateFS returns the embedded template filesystem for external access
// (e.g. the eject command).
func TemplateFS() embed.FS {
	return templateFS
}

// TemplateNames lists all embedded template filenames (without the templates/ prefix).
var TemplateNames = []string{
	"workspace_context.md",
}

// WorkspaceContextData holds the context handed to the AI agent when it is
// launched inside a freshly created or reused workspace.
type WorkspaceContextData struct {
	Kind           string // "issue", "pull-request", or "branch"
	Number         int    // zero for branch-kind targets
	BranchName     string
	Title          string
	Description    string
	Path           string
	Port           int
	Capabilities   []string
	PermissionMode string
	NoVerify       bool
}

// RenderWorkspaceContext renders the prompt given to the AI agent describing
// the workspace it has been launched into. If overrideDir is non-empty and
// contains workspace_context.md, that file is used instead of the embedded
// template.
func RenderWorkspaceContext(data WorkspaceContextData, overrideDir string) (string, error) {
	return render("templates/workspace_context.md", data, overrideDir)
}

func render(name string, data any, overrideDir string) (string, error) {
	content, err := readTemplate(name, overrideDir)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	return buf.String(), nil
}

// readTemplate returns the template content, preferring an override file on
// disk (overrideDir/<filename>) and falling back to the embedded version.
func readTemplate(name, overrideDir string) ([]byte, error) {
	filename := filepath.Base(name)

	if overrideDir != "" {
		overridePath := filepath.Join(overrideDir, filename)
		if content, err := os.ReadFile(overridePath); err == nil {
			return content, nil
		}
		// File missing in override dir is not an error — fall through to embedded.
	}

	content, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", name, err)
	}
	return content, nil
}
