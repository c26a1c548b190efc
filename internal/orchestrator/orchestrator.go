// Package orchestrator runs one clone request against every configured
// backend and collects the outcomes into a single report.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/metrics"
	"github.com/foldersmith/foldersmith/pkg/model"
	"github.com/foldersmith/foldersmith/pkg/webhook"
)

// Cloner clones templates in a single backend. *engine.Engine implements it.
type Cloner interface {
	Type() model.BackendType
	Clone(ctx context.Context, req model.CloneRequest) (*model.CloneResult, error)
}

// Recorder persists backend outcomes. *audit.FileAppender implements it.
type Recorder interface {
	Append(requestID string, res *model.CloneResult) error
}

// Notifier announces backend outcomes. *webhook.Client implements it.
type Notifier interface {
	Send(event webhook.Event, async bool) error
}

// Orchestrator fans a request out to its backends.
type Orchestrator struct {
	cloners    []Cloner
	recorder   Recorder
	notifier   Notifier
	metrics    *metrics.Registry
	sequential bool
	newID      func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAudit records every outcome with r.
func WithAudit(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithNotifier sends a webhook event for every outcome.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics counts outcomes and durations in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Sequential runs backends one at a time in configured order.
func Sequential() Option {
	return func(o *Orchestrator) { o.sequential = true }
}

// New creates an Orchestrator. Results are reported in the order of cloners.
func New(cloners []Cloner, opts ...Option) *Orchestrator {
	o := &Orchestrator{cloners: cloners, newID: uuid.NewString}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Backends returns the configured backend types in report order.
func (o *Orchestrator) Backends() []model.BackendType {
	out := make([]model.BackendType, len(o.cloners))
	for i, c := range o.cloners {
		out[i] = c.Type()
	}
	return out
}

// CloneAll validates req once and clones it in every backend. Backends run
// concurrently and independently: a failure in one never cancels another.
// The error is non-nil only for an invalid request, in which case no backend
// is contacted.
func (o *Orchestrator) CloneAll(ctx context.Context, req model.CloneRequest) (*Report, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	report := &Report{
		RequestID: o.newID(),
		Request:   req,
		Results:   make([]*model.CloneResult, len(o.cloners)),
	}
	log := logging.FromContext(ctx).WithFields(map[string]any{"request_id": report.RequestID})
	ctx = logging.NewContext(ctx, log)
	log.Info("clone requested", map[string]any{
		"root":        req.RootName,
		"template":    req.TemplateName,
		"destination": req.DestinationName,
		"backends":    len(o.cloners),
	})

	var g errgroup.Group
	if o.sequential {
		g.SetLimit(1)
	}
	for i, c := range o.cloners {
		g.Go(func() error {
			start := time.Now()
			res, err := c.Clone(ctx, req)
			if err != nil {
				res = &model.CloneResult{
					Backend: c.Type(),
					Status:  model.StatusBackendError,
					Request: req,
					Err:     err,
					Detail:  err.Error(),
				}
			}
			report.Results[i] = res
			o.observe(log, report.RequestID, res, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

// observe hands one outcome to the optional observers. Observer failures
// are logged and never change the outcome.
func (o *Orchestrator) observe(log *logging.Logger, requestID string, res *model.CloneResult, elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordClone(string(res.Backend), string(res.Status), elapsed, res.FoldersCreated, res.DocumentsCreated)
	}
	if o.recorder != nil {
		if err := o.recorder.Append(requestID, res); err != nil {
			log.ErrorErr("audit append failed", err, map[string]any{"backend": string(res.Backend)})
		}
	}
	if o.notifier != nil {
		if err := o.notifier.Send(webhook.EventFromResult(requestID, res), true); err != nil {
			log.Warn("webhook notification failed", map[string]any{
				"backend": string(res.Backend),
				"error":   err.Error(),
			})
		}
	}
}
