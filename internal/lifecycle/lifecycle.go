// Package lifecycle is the workspace lifecycle coordinator: the synchronous
// state machine that drives start/finish/cleanup over every other
// component. Each operation completes entirely within one CLI invocation,
// so the states below are names for log lines and error context, not rows
// in a dispatch table.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loom-dev/loom/internal/capability"
	"github.com/loom-dev/loom/internal/cleanup"
	"github.com/loom-dev/loom/internal/commitmgr"
	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/dbbranch"
	"github.com/loom-dev/loom/internal/envfile"
	"github.com/loom-dev/loom/internal/identifier"
	"github.com/loom-dev/loom/internal/loomerr"
	"github.com/loom-dev/loom/internal/mergemgr"
	"github.com/loom-dev/loom/internal/procsup"
	"github.com/loom-dev/loom/internal/prompts"
	"github.com/loom-dev/loom/internal/shell"
	"github.com/loom-dev/loom/internal/tracker"
	"github.com/loom-dev/loom/internal/validation"
	"github.com/loom-dev/loom/internal/vcs"
	"github.com/loom-dev/loom/internal/workspace"
)

// State names a point in a workspace's lifecycle. Used only for logging and
// error context — the control flow below is ordinary sequential Go, not a
// table lookup.
type State string

const (
	StateResolving    State = "resolving"
	StateCreating     State = "creating"
	StateProvisioning State = "provisioning"
	StateSeeding      State = "seeding"
	StateActive       State = "active"
	StateValidating   State = "validating"
	StateCommitting   State = "committing"
	StateRebasing     State = "rebasing"
	StateMerging      State = "merging"
	StateCleaning     State = "cleaning"
	StateRollback     State = "rollback"
)

// Coordinator wires every other component together. A nil Tracker or DB is
// treated as "not configured" and the dependent steps are skipped.
type Coordinator struct {
	RepoPath          string
	Settings          *config.Settings
	Tracker           tracker.Tracker
	DB                dbbranch.Provider
	Supervisor        *procsup.Supervisor
	BinDir            string
	PromptOverrideDir string

	// Install runs the workspace's dependency install step, a black-box
	// operation from this package's point of view; the default shells out
	// to `npm install`.
	Install func(ctx context.Context, path string) error

	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) runner() *shell.Runner {
	return &shell.Runner{Dir: c.RepoPath}
}

func (c *Coordinator) install(ctx context.Context, path string) error {
	if c.Install != nil {
		return c.Install(ctx, path)
	}
	installCtx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()
	r := &shell.Runner{Dir: path}
	_, err := r.Run(installCtx, "npm", "install")
	return err
}

// StartOptions are the Start flags carried down from the CLI.
type StartOptions struct {
	Force        bool
	DryRun       bool
	ExplicitPR   int
	SkipAgent    bool
	CodeOnly     bool
	TerminalOnly bool
}

// resolve turns user input into a concrete target, shared by Start, Finish,
// Cleanup, and Find.
func (c *Coordinator) resolve(ctx context.Context, input string, explicitPR int) (workspace.WorkspaceTarget, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return workspace.WorkspaceTarget{}, loomerr.Wrap(loomerr.AutoDetectFailed, input, err)
	}
	vcsRunner := identifier.NewVCSRunner(func(ctx context.Context) (string, error) {
		return vcs.CurrentBranch(ctx, c.runner())
	})
	var classifier identifier.Classifier
	if c.Tracker != nil {
		classifier = c.Tracker
	}
	return identifier.Resolve(ctx, input, identifier.Options{ExplicitPR: explicitPR}, cwd, c.RepoPath, classifier, vcsRunner)
}

func workflowFor(s *config.Settings, target workspace.WorkspaceTarget) config.WorkflowConfig {
	if s == nil || s.Workflows == nil {
		return config.WorkflowConfig{}
	}
	return s.Workflows[string(target.Kind)]
}

// Start resolves input to a target, reuses the target's existing workspace
// when one is intact, and otherwise creates, provisions, seeds, and
// launches a new one.
func (c *Coordinator) Start(ctx context.Context, input string, opts StartOptions) (*workspace.Workspace, error) {
	target, err := c.resolve(ctx, input, opts.ExplicitPR)
	if err != nil {
		return nil, err
	}

	if existing, err := workspace.RegistryGet(c.RepoPath, target); err == nil {
		if _, statErr := os.Stat(existing.Path); statErr == nil {
			return c.reuse(ctx, *existing, opts)
		}
	}

	return c.createNew(ctx, target, opts)
}

func (c *Coordinator) reuse(ctx context.Context, ws workspace.Workspace, opts StartOptions) (*workspace.Workspace, error) {
	wf := workflowFor(c.Settings, ws.Target)
	if opts.DryRun {
		return &ws, nil
	}

	envPath := filepath.Join(ws.Path, ".env")
	_ = envfile.SetEnvVar(envPath, "PORT", fmt.Sprintf("%d", ws.Port))

	detected := capability.Detect(ws.Path)
	ws.Capabilities = detected.Capabilities
	ws.BinEntries = detected.BinEntries

	if c.Tracker != nil && ws.Target.Kind == workspace.KindIssue {
		_ = c.Tracker.MoveIssueToInProgress(ctx, ws.Target.Number)
	}

	if err := workspace.RegistryUpdate(c.RepoPath, ws); err != nil {
		return nil, fmt.Errorf("updating registry on reuse: %w", err)
	}

	c.launch(ctx, ws, wf, opts)
	return &ws, nil
}

func (c *Coordinator) createNew(ctx context.Context, target workspace.WorkspaceTarget, opts StartOptions) (*workspace.Workspace, error) {
	branch, err := c.branchNameFor(ctx, target)
	if err != nil {
		return nil, err
	}

	mainBranch := "main"
	protected := []string{mainBranch}
	if c.Settings != nil {
		mainBranch = c.Settings.MainBranch
		protected = c.Settings.ProtectedBranches
	}

	repoRunner := c.runner()
	if target.Kind != workspace.KindPR && vcs.BranchExistsLocally(ctx, repoRunner, branch) {
		return nil, loomerr.New(loomerr.BranchExists, "branch already exists").WithInput(branch)
	}

	if err := vcs.EnsureRepositoryHasCommits(ctx, repoRunner); err != nil {
		return nil, loomerr.Wrap(loomerr.CommandFailed, "git", err)
	}

	worktreePrefix := ""
	if c.Settings != nil {
		worktreePrefix = c.Settings.WorktreePrefix
	}
	path := vcs.GenerateWorktreePath(c.RepoPath, worktreePrefix, branch)

	if opts.DryRun {
		return &workspace.Workspace{Target: target, Path: path, Branch: branch}, nil
	}

	createdBranch := !vcs.BranchExistsLocally(ctx, repoRunner, branch)
	if target.Kind == workspace.KindPR {
		// The PR's head branch lives on the remote; fetch it so the worktree
		// checks out the real branch instead of forking a new one off main.
		_ = vcs.FetchBranch(ctx, repoRunner, branch)
		if createdBranch && vcs.RemoteBranchExists(ctx, repoRunner, branch) {
			createdBranch = false
		}
	}
	if err := vcs.CreateWorktree(ctx, repoRunner, path, branch, mainBranch, createdBranch, protected); err != nil {
		return nil, loomerr.Wrap(loomerr.CommandFailed, "git worktree add", err)
	}

	ws := workspace.Workspace{ID: uuid.NewString(), Target: target, Path: path, Branch: branch, CreatedAt: c.now()}

	if target.Kind == workspace.KindPR && vcs.RemoteBranchExists(ctx, repoRunner, branch) {
		treeRunner := &shell.Runner{Dir: path}
		if _, err := treeRunner.Run(ctx, "git", "reset", "--hard", "origin/"+branch); err != nil {
			c.rollback(ctx, ws, createdBranch, false, "")
			return nil, loomerr.Wrap(loomerr.CommandFailed, "git reset --hard", err)
		}
	}

	if err := vcs.CopyDotLoom(c.RepoPath, path); err != nil {
		c.rollback(ctx, ws, createdBranch, false, "")
		return nil, loomerr.Wrap(loomerr.CommandFailed, "copying .loom", err)
	}
	_ = vcs.CopyDotClaude(c.RepoPath, path)

	dbCreated := false
	var dbURL string
	if c.DB != nil {
		url, created, err := c.DB.CreateBranchIfConfigured(ctx, target.RegistryKey())
		if err != nil {
			c.rollback(ctx, ws, createdBranch, dbCreated, "")
			return nil, loomerr.Wrap(loomerr.CommandFailed, "provisioning database branch", err)
		}
		dbCreated = created
		dbURL = url
	}

	if err := c.install(ctx, path); err != nil {
		c.rollback(ctx, ws, createdBranch, dbCreated, target.RegistryKey())
		return nil, loomerr.Wrap(loomerr.CommandFailed, "installing dependencies", err)
	}

	number := target.Number
	basePort := 3000
	dbKey := "DATABASE_URL"
	if c.Settings != nil {
		basePort = c.Settings.Capabilities.Web.BasePort
		if c.Settings.Capabilities.Database.DatabaseURLEnvVarName != "" {
			dbKey = c.Settings.Capabilities.Database.DatabaseURLEnvVarName
		}
	}
	port := basePort
	if target.Kind != workspace.KindBranch {
		port = procsup.CalculatePort(basePort, number)
	}
	ws.Port = port

	envPath := filepath.Join(path, ".env")
	_ = envfile.SetEnvVar(envPath, "PORT", fmt.Sprintf("%d", port))
	if dbURL != "" {
		_ = envfile.SetEnvVar(envPath, dbKey, dbURL)
	}

	detected := capability.Detect(path)
	ws.Capabilities = detected.Capabilities
	ws.BinEntries = detected.BinEntries
	if detected.HasCapability(capability.CLI) && c.BinDir != "" {
		links, _ := capability.CreateSymlinks(c.BinDir, path, number, detected.BinEntries)
		ws.CLISymlinks = links
	}

	if c.Tracker != nil && target.Kind == workspace.KindIssue {
		_ = c.Tracker.MoveIssueToInProgress(ctx, number)
	}

	wsDir := workspace.WorkspacePath(c.RepoPath, target.RegistryKey())
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}
	if err := workspace.WriteWorkspaceJSON(wsDir, ws); err != nil {
		return nil, fmt.Errorf("writing workspace.json: %w", err)
	}
	if err := workspace.RegistryCreate(c.RepoPath, ws); err != nil {
		return nil, fmt.Errorf("recording workspace in registry: %w", err)
	}

	wf := workflowFor(c.Settings, target)
	c.launch(ctx, ws, wf, opts)

	return &ws, nil
}

func (c *Coordinator) branchNameFor(ctx context.Context, target workspace.WorkspaceTarget) (string, error) {
	switch target.Kind {
	case workspace.KindBranch:
		return target.BranchName, nil
	case workspace.KindPR:
		if c.Tracker == nil {
			return "", loomerr.New(loomerr.NotFound, "no tracker configured to resolve PR branch").WithInput(target.OriginalInput)
		}
		pr, err := c.Tracker.FetchPR(ctx, target.Number)
		if err != nil {
			return "", loomerr.Wrap(loomerr.NetworkError, target.OriginalInput, err)
		}
		return pr.Branch, nil
	case workspace.KindIssue:
		if c.Tracker == nil {
			return fmt.Sprintf("issue-%d", target.Number), nil
		}
		issue, err := c.Tracker.FetchIssue(ctx, target.Number)
		if err != nil {
			return "", loomerr.Wrap(loomerr.NetworkError, target.OriginalInput, err)
		}
		return c.Tracker.GenerateBranchName(issue)
	default:
		return "", loomerr.New(loomerr.InvalidIdentifier, "unknown target kind").WithInput(target.OriginalInput)
	}
}

// rollback undoes partial start side-effects: remove the worktree, delete
// the DB branch and target branch if this call created them.
func (c *Coordinator) rollback(ctx context.Context, ws workspace.Workspace, deleteBranch, deleteDB bool, dbName string) {
	r := c.runner()
	if _, err := os.Stat(ws.Path); err == nil {
		_ = vcs.RemoveWorktree(ctx, r, c.RepoPath, ws.Path, true)
	}
	if deleteBranch {
		_ = vcs.DeleteBranch(ctx, r, ws.Branch)
	}
	if deleteDB && c.DB != nil && dbName != "" {
		_, _ = c.DB.DeleteBranchIfConfigured(ctx, dbName)
	}
}

func (c *Coordinator) launch(ctx context.Context, ws workspace.Workspace, wf config.WorkflowConfig, opts StartOptions) {
	if opts.DryRun || c.Supervisor == nil {
		return
	}

	if wf.StartIDEOrDefault() && !opts.TerminalOnly {
		_, _ = c.Supervisor.LaunchIDE(ws.Path)
	}
	if wf.StartDevServerOrDefault() && !opts.CodeOnly && ws.HasCapability(capability.Web) {
		_, _ = c.Supervisor.LaunchDevServer(ws.Path, ws.Port)
	}
	if wf.StartTerminalOrDefault() {
		_, _ = c.Supervisor.LaunchTerminal(ws.Path)
	}
	if wf.StartAIAgentOrDefault() && !opts.SkipAgent && !opts.CodeOnly {
		payload := c.renderAgentContext(ctx, ws, wf)
		_, _ = c.Supervisor.LaunchAIAgent(ws.Path, payload, wf)
	}
}

func (c *Coordinator) renderAgentContext(ctx context.Context, ws workspace.Workspace, wf config.WorkflowConfig) string {
	data := prompts.WorkspaceContextData{
		Kind:           string(ws.Target.Kind),
		Number:         ws.Target.Number,
		BranchName:     ws.Branch,
		Path:           ws.Path,
		Port:           ws.Port,
		Capabilities:   ws.Capabilities,
		PermissionMode: wf.PermissionMode,
		NoVerify:       wf.NoVerify,
	}

	if c.Tracker != nil {
		switch ws.Target.Kind {
		case workspace.KindIssue:
			if issue, err := c.Tracker.FetchIssue(ctx, ws.Target.Number); err == nil {
				data.Title = issue.Title
				data.Description = issue.Body
			}
		case workspace.KindPR:
			if pr, err := c.Tracker.FetchPR(ctx, ws.Target.Number); err == nil {
				data.Title = pr.Title
				data.Description = pr.Body
			}
		}
	}

	payload, err := prompts.RenderWorkspaceContext(data, c.PromptOverrideDir)
	if err != nil {
		return ""
	}
	return payload
}

// FinishOptions are the Finish flags carried down from the CLI.
type FinishOptions struct {
	Force      bool
	DryRun     bool
	ExplicitPR int
	NoVerify   bool
}

// Finish drives the integration pipeline for a workspace — validate,
// commit, rebase, fast-forward, post-merge install, cleanup — in strict
// order; any step's failure aborts the rest and leaves the workspace intact
// for manual recovery. Pull-request workspaces take the separate finishPR
// path.
func (c *Coordinator) Finish(ctx context.Context, input string, opts FinishOptions) (*workspace.CleanupResult, error) {
	target, err := c.resolve(ctx, input, opts.ExplicitPR)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.RegistryGet(c.RepoPath, target)
	if err != nil {
		return nil, loomerr.New(loomerr.NoWorktreeFound, "no workspace found for target").WithInput(target.OriginalInput)
	}
	if _, statErr := os.Stat(ws.Path); os.IsNotExist(statErr) {
		return nil, loomerr.New(loomerr.NoWorktreeFound, "workspace worktree is missing").WithInput(target.OriginalInput)
	}

	mainBranch := "main"
	if c.Settings != nil {
		mainBranch = c.Settings.MainBranch
	}

	if target.Kind == workspace.KindPR {
		return c.finishPR(ctx, *ws, mainBranch, opts)
	}

	if target.Kind == workspace.KindIssue && c.Tracker != nil {
		issue, err := c.Tracker.FetchIssue(ctx, target.Number)
		if err == nil && issue.State == "closed" && !opts.Force {
			return nil, loomerr.New(loomerr.ClosedIssueWithoutForce, "issue is closed").WithInput(target.OriginalInput)
		}
	}

	wf := workflowFor(c.Settings, target)

	result, err := validation.Run(ctx, ws.Path, validation.Options{SkipAll: wf.NoVerify || opts.NoVerify})
	if err != nil {
		return nil, loomerr.Wrap(loomerr.CommandFailed, "running validations", err)
	}
	if !result.Success {
		return nil, loomerr.New(loomerr.ValidationFailed, "one or more validation steps failed").WithInput(target.OriginalInput)
	}

	status, err := commitmgr.DetectUncommittedChanges(ctx, ws.Path)
	if err != nil {
		return nil, loomerr.Wrap(loomerr.CommandFailed, "detecting uncommitted changes", err)
	}
	if status.HasUncommittedChanges && !opts.DryRun {
		message := c.commitMessageFor(ctx, target)
		if err := commitmgr.CommitChanges(ctx, ws.Path, message, opts.NoVerify || wf.NoVerify); err != nil {
			return nil, loomerr.Wrap(loomerr.CommandFailed, "committing changes", err)
		}
	}

	if !opts.DryRun {
		rebaseOutcome, err := mergemgr.RebaseOntoMain(ctx, ws.Path, mainBranch)
		if err != nil {
			return nil, err
		}
		if !rebaseOutcome.Success {
			return nil, loomerr.Newf(loomerr.RebaseConflict, "rebase conflicts in: %v", rebaseOutcome.Conflicts).WithInput(target.OriginalInput)
		}

		if err := mergemgr.FastForwardMerge(ctx, c.RepoPath, mainBranch, ws.Branch); err != nil {
			return nil, err
		}

		if err := c.install(ctx, c.RepoPath); err != nil {
			return nil, loomerr.Wrap(loomerr.CommandFailed, "post-merge install", err)
		}
	}

	cleanupResult := cleanup.Run(ctx, c.RepoPath, *ws, c.cleanupDeps(mainBranch), cleanup.Options{
		DryRun:       opts.DryRun,
		Force:        opts.Force,
		DeleteBranch: true,
		KeepDatabase: false,
	})
	return &cleanupResult, nil
}

func (c *Coordinator) finishPR(ctx context.Context, ws workspace.Workspace, mainBranch string, opts FinishOptions) (*workspace.CleanupResult, error) {
	if c.Tracker == nil {
		return nil, loomerr.New(loomerr.NotFound, "no tracker configured to resolve pull-request state").WithInput(ws.Target.OriginalInput)
	}
	pr, err := c.Tracker.FetchPR(ctx, ws.Target.Number)
	if err != nil {
		return nil, loomerr.Wrap(loomerr.NetworkError, ws.Target.OriginalInput, err)
	}

	if pr.State == "open" {
		if !opts.DryRun {
			r := &shell.Runner{Dir: ws.Path}
			if _, err := r.Run(ctx, "git", "push", "origin", ws.Branch); err != nil {
				return nil, loomerr.Wrap(loomerr.CommandFailed, "git push", err)
			}
		}
		return nil, nil
	}

	cleanupResult := cleanup.Run(ctx, c.RepoPath, ws, c.cleanupDeps(mainBranch), cleanup.Options{
		DryRun:       opts.DryRun,
		Force:        opts.Force,
		DeleteBranch: true,
		KeepDatabase: false,
	})
	return &cleanupResult, nil
}

func (c *Coordinator) commitMessageFor(ctx context.Context, target workspace.WorkspaceTarget) string {
	if c.Tracker != nil && target.Kind == workspace.KindIssue {
		if issue, err := c.Tracker.FetchIssue(ctx, target.Number); err == nil && issue.Title != "" {
			return issue.Title
		}
	}
	return fmt.Sprintf("Finish work on %s", target.OriginalInput)
}

func (c *Coordinator) cleanupDeps(mainBranch string) cleanup.Deps {
	dbKey := "DATABASE_URL"
	if c.Settings != nil && c.Settings.Capabilities.Database.DatabaseURLEnvVarName != "" {
		dbKey = c.Settings.Capabilities.Database.DatabaseURLEnvVarName
	}
	return cleanup.Deps{
		DB:         c.DB,
		MainBranch: mainBranch,
		DBURLKey:   dbKey,
	}
}

// CleanupMode selects one of the mutually exclusive cleanup modes.
type CleanupMode string

const (
	CleanupSingle   CleanupMode = "single"
	CleanupAll      CleanupMode = "all"
	CleanupList     CleanupMode = "list"
	CleanupByNumber CleanupMode = "by-number"
)

// CleanupOptions mirrors cleanup(input, options).
type CleanupOptions struct {
	Mode         CleanupMode
	Input        string
	IssueNumber  int
	Force        bool
	DryRun       bool
	DeleteBranch bool
	KeepDatabase bool
}

// Cleanup tears down one workspace, every workspace, or a by-number
// workspace, or lists them, per opts.Mode.
func (c *Coordinator) Cleanup(ctx context.Context, opts CleanupOptions) ([]workspace.CleanupResult, error) {
	switch opts.Mode {
	case CleanupList:
		if opts.Input != "" {
			return nil, loomerr.New(loomerr.OptionConflict, "cleanup --list does not take an identifier")
		}
		entries, err := workspace.RegistryListWithMissing(c.RepoPath)
		if err != nil {
			return nil, fmt.Errorf("listing workspaces: %w", err)
		}
		_ = entries // informational mode: caller renders the list, no mutation here
		return nil, nil

	case CleanupAll:
		if opts.Input != "" {
			return nil, loomerr.New(loomerr.OptionConflict, "cleanup --all does not take an identifier")
		}
		all, err := workspace.RegistryList(c.RepoPath)
		if err != nil {
			return nil, fmt.Errorf("listing workspaces: %w", err)
		}
		mainBranch := "main"
		if c.Settings != nil {
			mainBranch = c.Settings.MainBranch
		}
		return cleanup.RunMultiple(ctx, c.RepoPath, all, c.cleanupDeps(mainBranch), cleanup.Options{
			DryRun: opts.DryRun, Force: opts.Force,
			DeleteBranch: opts.DeleteBranch, KeepDatabase: opts.KeepDatabase,
		}), nil

	case CleanupByNumber:
		if opts.Input != "" {
			return nil, loomerr.New(loomerr.OptionConflict, "cleanup --issue N does not take an identifier")
		}
		target := workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: opts.IssueNumber}
		ws, err := workspace.RegistryGet(c.RepoPath, target)
		if err != nil {
			return []workspace.CleanupResult{alreadyCleanedUp(target)}, nil
		}
		mainBranch := "main"
		if c.Settings != nil {
			mainBranch = c.Settings.MainBranch
		}
		result := cleanup.Run(ctx, c.RepoPath, *ws, c.cleanupDeps(mainBranch), cleanup.Options{
			DryRun: opts.DryRun, Force: opts.Force,
			DeleteBranch: opts.DeleteBranch, KeepDatabase: opts.KeepDatabase,
		})
		return []workspace.CleanupResult{result}, nil

	default: // CleanupSingle
		target, err := c.resolve(ctx, opts.Input, 0)
		if err != nil {
			return nil, err
		}
		ws, err := workspace.RegistryGet(c.RepoPath, target)
		if err != nil {
			return []workspace.CleanupResult{alreadyCleanedUp(target)}, nil
		}
		mainBranch := "main"
		if c.Settings != nil {
			mainBranch = c.Settings.MainBranch
		}
		result := cleanup.Run(ctx, c.RepoPath, *ws, c.cleanupDeps(mainBranch), cleanup.Options{
			DryRun: opts.DryRun, Force: opts.Force,
			DeleteBranch: opts.DeleteBranch, KeepDatabase: opts.KeepDatabase,
		})
		return []workspace.CleanupResult{result}, nil
	}
}

// alreadyCleanedUp synthesizes a CleanupResult for a target with no
// registered workspace — either it never existed or a prior cleanup already
// ran. Cleanup is idempotent: repeating it on an already-cleaned target
// succeeds, reporting every step as already done rather than failing to
// resolve a workspace that is correctly gone.
func alreadyCleanedUp(target workspace.WorkspaceTarget) workspace.CleanupResult {
	skip := func(kind string) workspace.CleanupOperation {
		return workspace.CleanupOperation{Kind: kind, Success: true, Message: "already cleaned up, skipped"}
	}
	return workspace.CleanupResult{
		Target:  target,
		Success: true,
		Operations: []workspace.CleanupOperation{
			skip("env-file"), skip("dev-server"), skip("database"),
			skip("worktree"), skip("branch"), skip("symlinks"),
		},
	}
}

// List implements the read-only list operation.
func (c *Coordinator) List(repoPath string) ([]workspace.WorkspaceEntry, error) {
	return workspace.RegistryListWithMissing(repoPath)
}

// Find implements the read-only find operation: resolve an identifier and
// return its registered workspace, if any.
func (c *Coordinator) Find(ctx context.Context, input string) (*workspace.Workspace, error) {
	target, err := c.resolve(ctx, input, 0)
	if err != nil {
		return nil, err
	}
	return workspace.RegistryGet(c.RepoPath, target)
}
