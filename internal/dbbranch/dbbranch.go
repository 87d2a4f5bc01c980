// Package dbbranch is the database adapter: it provisions and tears down
// isolated database branches for a workspace against a Neon-style
// branch-provisioning HTTP API.
package dbbranch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/loom-dev/loom/internal/retry"
)

// Provider provisions and tears down isolated database branches.
type Provider interface {
	CreateBranchIfConfigured(ctx context.Context, name string) (connectionURL string, created bool, err error)
	DeleteBranchIfConfigured(ctx context.Context, name string) (deleted bool, err error)
}

// NeonLike is a Provider backed by any Neon-style branch-provisioning HTTP
// API (Neon itself, or a PlanetScale-branching-shaped equivalent) — the
// concrete type is named for the class of provider it targets rather than
// one vendor.
type NeonLike struct {
	client    *resty.Client
	projectID string
}

// Config configures a NeonLike provider. Empty BaseURL/Token means "not
// configured" — CreateBranchIfConfigured/DeleteBranchIfConfigured become
// no-ops in that case, hence the "IfConfigured" naming.
type Config struct {
	BaseURL   string
	Token     string
	ProjectID string
	Timeout   time.Duration
}

// New builds a NeonLike provider from cfg. A zero-value Config yields an
// unconfigured provider whose methods are no-ops.
func New(cfg Config) *NeonLike {
	if cfg.BaseURL == "" || cfg.Token == "" {
		return &NeonLike{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.Token)
	return &NeonLike{client: client, projectID: cfg.ProjectID}
}

func (p *NeonLike) configured() bool {
	return p.client != nil
}

type createBranchRequest struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

type createBranchResponse struct {
	ConnectionURL string `json:"connectionUrl"`
}

// CreateBranchIfConfigured creates an isolated database branch named name.
// When no provider is configured, it returns ("", false, nil) — callers
// treat this as "no database capability" rather than an error.
func (p *NeonLike) CreateBranchIfConfigured(ctx context.Context, name string) (string, bool, error) {
	if !p.configured() {
		return "", false, nil
	}

	resp, err := retry.DoVal(ctx, func() (*resty.Response, error) {
		r, err := p.client.R().
			SetContext(ctx).
			SetBody(createBranchRequest{ProjectID: p.projectID, Name: name}).
			Post("/branches")
		if err != nil {
			return nil, err
		}
		if r.StatusCode() >= 400 && r.StatusCode() < 500 {
			return r, retry.Permanent(fmt.Errorf("creating database branch %s: %s", name, r.Status()))
		}
		if r.IsError() {
			return r, fmt.Errorf("creating database branch %s: %s", name, r.Status())
		}
		return r, nil
	})
	if err != nil {
		return "", false, err
	}

	var out createBranchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", false, fmt.Errorf("decoding create-branch response: %w", err)
	}
	return out.ConnectionURL, true, nil
}

// DeleteBranchIfConfigured deletes the database branch named name. Deleting
// an already-absent branch is treated as success with deleted=false.
func (p *NeonLike) DeleteBranchIfConfigured(ctx context.Context, name string) (bool, error) {
	if !p.configured() {
		return false, nil
	}

	resp, err := retry.DoVal(ctx, func() (*resty.Response, error) {
		r, err := p.client.R().
			SetContext(ctx).
			SetQueryParam("projectId", p.projectID).
			Delete("/branches/" + name)
		if err != nil {
			return nil, err
		}
		if r.StatusCode() == http.StatusNotFound {
			return r, nil
		}
		if r.StatusCode() >= 400 && r.StatusCode() < 500 {
			return r, retry.Permanent(fmt.Errorf("deleting database branch %s: %s", name, r.Status()))
		}
		if r.IsError() {
			return r, fmt.Errorf("deleting database branch %s: %s", name, r.Status())
		}
		return r, nil
	})
	if err != nil {
		return false, err
	}
	return resp.StatusCode() != http.StatusNotFound, nil
}
