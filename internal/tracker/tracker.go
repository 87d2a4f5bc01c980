// Package tracker is the issue-tracker adapter: one Tracker interface over
// split github/linear clients, a single collaborator that can both fetch
// pull requests and fetch/transition issues.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"github.com/gosimple/slug"

	"github.com/loom-dev/loom/internal/loomerr"
	"github.com/loom-dev/loom/internal/tracker/github"
	"github.com/loom-dev/loom/internal/tracker/linear"
)

// Issue is the tracker-agnostic issue shape consumed by the rest of loom.
type Issue struct {
	Number    int
	Title     string
	State     string // "open" or "closed"
	Body      string
	Labels    []string
	Assignees []string
	URL       string
}

// PullRequest is the tracker-agnostic pull-request shape.
type PullRequest struct {
	Number     int
	Title      string
	State      string // "open", "closed", or "merged"
	Branch     string
	BaseBranch string
	Body       string
	URL        string
	IsDraft    bool
}

// Tracker is the interface the lifecycle coordinator holds on the issue/PR
// collaborator.
type Tracker interface {
	DetectInputType(ctx context.Context, raw string) (kind string, number int, err error)
	FetchIssue(ctx context.Context, number int) (Issue, error)
	FetchPR(ctx context.Context, number int) (PullRequest, error)
	GenerateBranchName(issue Issue) (string, error)
	MoveIssueToInProgress(ctx context.Context, number int) error
	CreateIssue(ctx context.Context, title, body string) (Issue, error)
	PostFeedback(ctx context.Context, kind string, number int, text string) error
}

// Composite is the production Tracker: a Linear client supplies issues, a
// GitHub client supplies pull requests for the same repository.
type Composite struct {
	Linear *linear.Client
	GitHub *github.Client

	// Owner/Repo identify the GitHub repository PRs are fetched from.
	Owner, Repo string

	// TeamKey is the Linear team key prefix (e.g. "ENG") used to build
	// "ENG-42"-style identifiers from a bare issue number.
	TeamKey string

	// InProgressStateID is the Linear workflow state ID issues move to on
	// MoveIssueToInProgress. Empty disables the transition (surfaced as
	// MissingScope, which callers treat as non-fatal).
	InProgressStateID string
}

func (c *Composite) identifierFor(number int) string {
	return fmt.Sprintf("%s-%d", c.TeamKey, number)
}

// FetchIssue implements Tracker.
func (c *Composite) FetchIssue(ctx context.Context, number int) (Issue, error) {
	if c.Linear == nil {
		return Issue{}, loomerr.New(loomerr.NotFound, "no issue tracker configured").WithInput(strconv.Itoa(number))
	}
	li, err := c.Linear.FetchIssueByIdentifier(ctx, c.identifierFor(number))
	if err != nil {
		if isLinearNotFound(err) {
			return Issue{}, loomerr.Wrap(loomerr.NotFound, strconv.Itoa(number), err)
		}
		return Issue{}, loomerr.Wrap(loomerr.NetworkError, strconv.Itoa(number), err)
	}
	return Issue{
		Number:    number,
		Title:     li.Title,
		State:     stateForLinear(li.State),
		Body:      li.Description,
		Labels:    li.Labels,
		Assignees: li.Assignees,
		URL:       li.URL,
	}, nil
}

func stateForLinear(s linear.WorkflowState) string {
	switch s.Type {
	case "completed", "canceled", "cancelled":
		return "closed"
	default:
		return "open"
	}
}

// FetchPR implements Tracker.
func (c *Composite) FetchPR(ctx context.Context, number int) (PullRequest, error) {
	if c.GitHub == nil {
		return PullRequest{}, loomerr.New(loomerr.NotFound, "no pull-request tracker configured").WithInput(strconv.Itoa(number))
	}
	pr, err := c.GitHub.FetchPR(ctx, c.Owner, c.Repo, number)
	if err != nil {
		if isGitHubNotFound(err) {
			return PullRequest{}, loomerr.Wrap(loomerr.NotFound, strconv.Itoa(number), err)
		}
		return PullRequest{}, loomerr.Wrap(loomerr.NetworkError, strconv.Itoa(number), err)
	}
	state := pr.State
	if pr.Merged {
		state = "merged"
	}
	return PullRequest{
		Number:     pr.Number,
		Title:      pr.Title,
		State:      state,
		Branch:     pr.HeadRef,
		BaseBranch: pr.BaseRef,
		Body:       pr.Body,
		URL:        pr.HTMLURL,
		IsDraft:    pr.Draft,
	}, nil
}

// DetectInputType probes GitHub (is it a known PR number) then Linear (is it
// a known issue number) to classify an ambiguous numeric identifier.
// Network failure propagates; a clean "not found" on both sides yields kind
// "unknown".
func (c *Composite) DetectInputType(ctx context.Context, raw string) (string, int, error) {
	trimmed := strings.TrimSpace(raw)
	digits := strings.TrimLeft(trimmed, "0")
	if digits == "" {
		digits = "0"
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, loomerr.New(loomerr.InvalidIdentifier, "not a numeric identifier").WithInput(raw)
	}

	if c.GitHub != nil {
		if _, err := c.GitHub.FetchPR(ctx, c.Owner, c.Repo, n); err == nil {
			return "pr", n, nil
		} else if !isGitHubNotFound(err) {
			return "", 0, loomerr.Wrap(loomerr.NetworkError, raw, err)
		}
	}
	if c.Linear != nil {
		if _, err := c.Linear.FetchIssueByIdentifier(ctx, c.identifierFor(n)); err == nil {
			return "issue", n, nil
		} else if !isLinearNotFound(err) {
			return "", 0, loomerr.Wrap(loomerr.NetworkError, raw, err)
		}
	}
	return "unknown", n, nil
}

// GenerateBranchName slugifies {number, title} into a VCS-ref-safe,
// length-bounded, lowercase branch name (e.g. "feat/issue-42-add-oauth").
func (c *Composite) GenerateBranchName(issue Issue) (string, error) {
	if issue.Number <= 0 {
		return "", loomerr.New(loomerr.InvalidIdentifier, "issue number must be positive to derive a branch name")
	}
	slugified := slug.Make(issue.Title)
	const maxSlugLen = 40
	if len(slugified) > maxSlugLen {
		slugified = strings.TrimRight(slugified[:maxSlugLen], "-")
	}
	name := fmt.Sprintf("feat/issue-%d", issue.Number)
	if slugified != "" {
		name = fmt.Sprintf("%s-%s", name, slugified)
	}
	return name, nil
}

// MoveIssueToInProgress transitions a Linear issue to its "in progress"
// workflow state. Missing scope/configuration surfaces as MissingScope,
// which callers log and continue past.
func (c *Composite) MoveIssueToInProgress(ctx context.Context, number int) error {
	if c.Linear == nil || c.InProgressStateID == "" {
		return loomerr.New(loomerr.MissingScope, "no in-progress workflow state configured").WithInput(strconv.Itoa(number))
	}
	li, err := c.Linear.FetchIssueByIdentifier(ctx, c.identifierFor(number))
	if err != nil {
		return loomerr.Wrap(loomerr.MissingScope, strconv.Itoa(number), err)
	}
	if err := c.Linear.UpdateIssueState(ctx, li.ID, c.InProgressStateID); err != nil {
		return loomerr.Wrap(loomerr.MissingScope, strconv.Itoa(number), err)
	}
	return nil
}

// CreateIssue files a new issue on the configured Linear team and returns
// its tracker-agnostic shape, numbered from its identifier's trailing digits
// (e.g. "ENG-123" -> 123) so the rest of loom can address it the same way
// as any other fetched issue.
func (c *Composite) CreateIssue(ctx context.Context, title, body string) (Issue, error) {
	if c.Linear == nil {
		return Issue{}, loomerr.New(loomerr.NotFound, "no issue tracker configured").WithInput(title)
	}
	teamID, err := c.Linear.ResolveTeamID(ctx, c.TeamKey)
	if err != nil {
		return Issue{}, loomerr.Wrap(loomerr.NetworkError, title, err)
	}
	li, err := c.Linear.CreateIssue(ctx, teamID, title, body)
	if err != nil {
		return Issue{}, loomerr.Wrap(loomerr.NetworkError, title, err)
	}
	number := numberFromIdentifier(li.Identifier)
	return Issue{
		Number: number,
		Title:  li.Title,
		State:  stateForLinear(li.State),
		Body:   li.Description,
		URL:    li.URL,
	}, nil
}

// PostFeedback leaves an operator comment on the issue or pull request
// backing a workspace, routed to whichever tracker owns that kind.
func (c *Composite) PostFeedback(ctx context.Context, kind string, number int, text string) error {
	switch kind {
	case "pull-request":
		if c.GitHub == nil {
			return loomerr.New(loomerr.NotFound, "no pull-request tracker configured").WithInput(strconv.Itoa(number))
		}
		_, err := c.GitHub.PostPRComment(ctx, c.Owner, c.Repo, number, text)
		if err != nil {
			return loomerr.Wrap(loomerr.NetworkError, strconv.Itoa(number), err)
		}
		return nil
	default:
		if c.Linear == nil {
			return loomerr.New(loomerr.NotFound, "no issue tracker configured").WithInput(strconv.Itoa(number))
		}
		li, err := c.Linear.FetchIssueByIdentifier(ctx, c.identifierFor(number))
		if err != nil {
			return loomerr.Wrap(loomerr.NetworkError, strconv.Itoa(number), err)
		}
		if _, err := c.Linear.PostComment(ctx, li.ID, text); err != nil {
			return loomerr.Wrap(loomerr.NetworkError, strconv.Itoa(number), err)
		}
		return nil
	}
}

func numberFromIdentifier(identifier string) int {
	idx := strings.LastIndex(identifier, "-")
	if idx == -1 {
		return 0
	}
	n, err := strconv.Atoi(identifier[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

func isGitHubNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == 404
	}
	return false
}

func isLinearNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
