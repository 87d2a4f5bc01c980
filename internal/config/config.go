// Package config implements the layered settings store: JSON settings
// files merged defaults ◁ base ◁ local ◁ CLI overrides, then validated in
// full before any workflow runs.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"

	"github.com/loom-dev/loom/internal/loomerr"
)

const settingsDir = ".loom"

// WorkflowConfig controls what the lifecycle coordinator launches for a
// given workspace kind. Settings.Workflows is keyed by the target kind
// string ("issue", "pull-request", "branch"); a "regular" key is not looked up.
type WorkflowConfig struct {
	PermissionMode string `json:"permissionMode,omitempty" validate:"omitempty,oneof=plan acceptEdits bypassPermissions default"`
	NoVerify       bool   `json:"noVerify,omitempty"`
	StartIDE       *bool  `json:"startIde,omitempty"`
	StartDevServer *bool  `json:"startDevServer,omitempty"`
	StartAIAgent   *bool  `json:"startAiAgent,omitempty"`
	StartTerminal  *bool  `json:"startTerminal,omitempty"`
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// StartIDEOrDefault reports whether the IDE should be launched, defaulting
// to true when unset.
func (w WorkflowConfig) StartIDEOrDefault() bool { return boolOrDefault(w.StartIDE, true) }

// StartDevServerOrDefault reports whether the dev server should be
// launched, defaulting to true when unset.
func (w WorkflowConfig) StartDevServerOrDefault() bool {
	return boolOrDefault(w.StartDevServer, true)
}

// StartAIAgentOrDefault reports whether the AI agent should be launched,
// defaulting to true when unset.
func (w WorkflowConfig) StartAIAgentOrDefault() bool { return boolOrDefault(w.StartAIAgent, true) }

// StartTerminalOrDefault reports whether a plain terminal should be
// launched, defaulting to false when unset.
func (w WorkflowConfig) StartTerminalOrDefault() bool {
	return boolOrDefault(w.StartTerminal, false)
}

// AgentConfig configures a named AI agent profile.
type AgentConfig struct {
	Model string `json:"model,omitempty" validate:"omitempty,oneof=sonnet opus haiku"`
}

// WebCapability configures the port range used for dev-server workspaces.
type WebCapability struct {
	BasePort int `json:"basePort" validate:"required,min=1,max=65535"`
}

// DatabaseCapability configures the environment variable name written with
// a provisioned database branch URL.
type DatabaseCapability struct {
	DatabaseURLEnvVarName string `json:"databaseUrlEnvVarName" validate:"omitempty,envvarname"`
}

// Capabilities groups optional per-capability configuration.
type Capabilities struct {
	Web      WebCapability      `json:"web,omitempty"`
	Database DatabaseCapability `json:"database,omitempty"`
}

// Settings is the merged, validated configuration consumed by every other
// component.
type Settings struct {
	MainBranch        string                    `json:"mainBranch" validate:"required"`
	WorktreePrefix    string                    `json:"worktreePrefix,omitempty" validate:"omitempty,worktreeprefix"`
	ProtectedBranches []string                  `json:"protectedBranches,omitempty"`
	Workflows         map[string]WorkflowConfig `json:"workflows,omitempty" validate:"omitempty,dive"`
	Agents            map[string]AgentConfig    `json:"agents,omitempty" validate:"omitempty,dive"`
	Capabilities      Capabilities              `json:"capabilities,omitempty"`
}

// Defaults returns the built-in baseline settings, the first layer of the
// merge chain.
func Defaults() Settings {
	return Settings{
		MainBranch: "main",
		Capabilities: Capabilities{
			Web:      WebCapability{BasePort: 3000},
			Database: DatabaseCapability{DatabaseURLEnvVarName: "DATABASE_URL"},
		},
	}
}

var worktreePrefixSegment = regexp.MustCompile(`^[A-Za-z0-9_-]*[A-Za-z0-9][A-Za-z0-9_-]*$`)

func validateWorktreePrefix(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" {
		return true
	}
	for _, seg := range strings.Split(v, "/") {
		if seg == "" || !worktreePrefixSegment.MatchString(seg) {
			return false
		}
	}
	return true
}

var envVarNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

func validateEnvVarName(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" {
		return true
	}
	return envVarNamePattern.MatchString(v)
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("worktreeprefix", validateWorktreePrefix)
	_ = v.RegisterValidation("envvarname", validateEnvVarName)
	return v
}

// Load reads settings.json and settings.local.json under
// <projectRoot>/.loom, deep-merges defaults ◁ base ◁ local ◁ cliOverrides,
// then validates the result.
func Load(projectRoot string, cliOverrides Settings) (*Settings, error) {
	merged := Defaults()

	base, err := readSettingsFile(filepath.Join(projectRoot, settingsDir, "settings.json"))
	if err != nil {
		return nil, err
	}
	local, err := readSettingsFile(filepath.Join(projectRoot, settingsDir, "settings.local.json"))
	if err != nil {
		return nil, err
	}

	for _, layer := range []Settings{base, local, cliOverrides} {
		if err := mergo.Merge(&merged, layer, mergo.WithOverride); err != nil {
			return nil, loomerr.Wrap(loomerr.ConfigParseError, projectRoot, err)
		}
	}

	if err := newValidator().Struct(&merged); err != nil {
		valErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, loomerr.Wrap(loomerr.ConfigValidationError, projectRoot, err)
		}
		return nil, validationError(projectRoot, valErrs, cliOverrides)
	}

	return &merged, nil
}

func validationError(projectRoot string, valErrs validator.ValidationErrors, cliOverrides Settings) *loomerr.Error {
	var b strings.Builder
	for i, fe := range valErrs {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s failed validation %q", fe.Namespace(), fe.Tag())
	}
	if !isZeroSettings(cliOverrides) {
		b.WriteString(" (possibly introduced by --set overrides)")
	}
	return loomerr.New(loomerr.ConfigValidationError, b.String()).WithInput(projectRoot)
}

func isZeroSettings(s Settings) bool {
	return s.MainBranch == "" && s.WorktreePrefix == "" && len(s.ProtectedBranches) == 0 &&
		len(s.Workflows) == 0 && len(s.Agents) == 0 &&
		s.Capabilities.Web.BasePort == 0 && s.Capabilities.Database.DatabaseURLEnvVarName == ""
}

// readSettingsFile reads and JSON-decodes a settings file. A missing file
// yields an empty Settings, not an error; a present but malformed file
// fails with ConfigParseError naming it.
func readSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, loomerr.Wrap(loomerr.ConfigParseError, path, err)
	}

	// Individual settings files are strict objects: a key the schema does not
	// know is rejected, while the merged view stays permissive.
	dec := json.NewDecoder(bytes.NewReader(stripJSONComments(data)))
	dec.DisallowUnknownFields()

	var s Settings
	if err := dec.Decode(&s); err != nil {
		kind := loomerr.ConfigParseError
		if strings.Contains(err.Error(), "unknown field") {
			kind = loomerr.ConfigValidationError
		}
		return Settings{}, loomerr.Wrap(kind, path, err)
	}
	return s, nil
}

// stripJSONComments removes "//" line comments and "/* */" block comments
// that lie outside string literals, so settings files may be commented
// despite being parsed as strict JSON.
func stripJSONComments(data []byte) []byte {
	var out []byte
	inString := false
	escaped := false
	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}

// GetProtectedBranches returns the effective protected-branch list for a
// project: the configured list with mainBranch prepended when absent, or
// the built-in [mainBranch, main, master, develop] set when unconfigured.
func GetProtectedBranches(projectRoot string) ([]string, error) {
	settings, err := Load(projectRoot, Settings{})
	if err != nil {
		return nil, err
	}
	return protectedBranchesFor(settings), nil
}

func protectedBranchesFor(s *Settings) []string {
	if len(s.ProtectedBranches) == 0 {
		return []string{s.MainBranch, "main", "master", "develop"}
	}
	for _, b := range s.ProtectedBranches {
		if b == s.MainBranch {
			return append([]string(nil), s.ProtectedBranches...)
		}
	}
	return append([]string{s.MainBranch}, s.ProtectedBranches...)
}
