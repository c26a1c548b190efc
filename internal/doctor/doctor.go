// Package doctor runs health checks on a foldersmith installation: its
// configuration, its backends and its audit log.
package doctor

import (
	"context"
	"fmt"

	"github.com/foldersmith/foldersmith/internal/audit"
	"github.com/foldersmith/foldersmith/internal/store"
	"github.com/foldersmith/foldersmith/pkg/config"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// ProbeName is looked up at the top level of each backend by a probing
// check. Any answer, including "not found", proves the backend reachable.
const ProbeName = "foldersmith-doctor-probe"

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Backend     string `json:"backend,omitempty"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
	// AuditRecords is the number of verified audit log records.
	AuditRecords int `json:"audit_records"`
}

// StoreFactory builds the store for one backend.
type StoreFactory func(ctx context.Context, backend model.BackendType, cfg *config.Config) (store.Store, error)

// Doctor performs installation health checks.
type Doctor struct {
	cfg      *config.Config
	newStore StoreFactory
}

// NewDoctor creates a new doctor. A nil factory uses store.New.
func NewDoctor(cfg *config.Config, newStore StoreFactory) *Doctor {
	if newStore == nil {
		newStore = store.New
	}
	return &Doctor{cfg: cfg, newStore: newStore}
}

// Check runs all diagnostic checks. With probe set, every backend is also
// contacted once.
func (d *Doctor) Check(ctx context.Context, probe bool) (*Result, error) {
	result := &Result{Healthy: true}

	// 1. Configuration
	if err := d.cfg.Validate(); err != nil {
		result.add(Finding{Category: "config", Description: err.Error(), Severity: "critical"})
		return result, nil
	}

	// 2. Backends
	for _, b := range d.cfg.BackendTypes() {
		d.checkBackend(ctx, result, b, probe)
	}

	// 3. Slack and webhooks
	d.checkServer(result)

	// 4. Audit chain
	d.checkAudit(result)

	return result, nil
}

func (d *Doctor) checkBackend(ctx context.Context, result *Result, backend model.BackendType, probe bool) {
	s, err := d.newStore(ctx, backend, d.cfg)
	if err != nil {
		result.add(Finding{
			Category:    "backend",
			Description: fmt.Sprintf("cannot create %s store: %v", backend.DisplayName(), err),
			Severity:    "error",
			Backend:     string(backend),
		})
		return
	}
	if !probe {
		return
	}
	if _, err := s.FindByName(ctx, nil, ProbeName); err != nil {
		result.add(Finding{
			Category:    "backend",
			Description: fmt.Sprintf("%s is not reachable: %v", backend.DisplayName(), err),
			Severity:    "error",
			Backend:     string(backend),
		})
	}
}

func (d *Doctor) checkServer(result *Result) {
	if err := d.cfg.ValidateServer(); err != nil {
		result.add(Finding{
			Category:    "server",
			Description: fmt.Sprintf("serve will not start: %v", err),
			Severity:    "warning",
		})
	}
	if d.cfg.Webhook.Enabled && len(d.cfg.Webhook.Hooks) == 0 {
		result.add(Finding{
			Category:    "webhook",
			Description: "webhooks are enabled but none are configured",
			Severity:    "warning",
		})
	}
}

func (d *Doctor) checkAudit(result *Result) {
	if d.cfg.Audit.Path == "" {
		return
	}
	n, err := audit.Verify(d.cfg.Audit.Path)
	result.AuditRecords = n
	if err != nil {
		result.add(Finding{
			Category:    "audit",
			Description: err.Error(),
			Severity:    "critical",
			Path:        d.cfg.Audit.Path,
		})
	}
}

// add records f; anything worse than a warning makes the result unhealthy.
func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity != "warning" {
		r.Healthy = false
	}
}
