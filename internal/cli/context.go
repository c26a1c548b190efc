package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/foldersmith/foldersmith/internal/audit"
	"github.com/foldersmith/foldersmith/internal/engine"
	"github.com/foldersmith/foldersmith/internal/orchestrator"
	"github.com/foldersmith/foldersmith/internal/store"
	"github.com/foldersmith/foldersmith/pkg/color"
	"github.com/foldersmith/foldersmith/pkg/config"
	"github.com/foldersmith/foldersmith/pkg/metrics"
	"github.com/foldersmith/foldersmith/pkg/model"
	"github.com/foldersmith/foldersmith/pkg/webhook"
)

var (
	loaded    *config.Config
	loadedErr error
	// newStore builds backends; tests swap it for in-memory stores.
	newStore = store.New
)

// loadConfig loads the configuration once per process.
func loadConfig() (*config.Config, error) {
	if loaded == nil && loadedErr == nil {
		loaded, loadedErr = config.Load(configPath)
	}
	return loaded, loadedErr
}

// requireConfig loads and validates the configuration.
func requireConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// service is an orchestrator with the observers the config enables.
type service struct {
	orch     *orchestrator.Orchestrator
	notifier *webhook.Client
}

// Close flushes pending webhook deliveries.
func (s *service) Close() error {
	if s.notifier != nil {
		return s.notifier.Close()
	}
	return nil
}

// newService builds one engine per enabled backend, or per backend named in
// only, and wires audit, webhooks and metrics from cfg.
func newService(ctx context.Context, cfg *config.Config, only []string, opts ...orchestrator.Option) (*service, error) {
	backends := cfg.BackendTypes()
	if len(only) > 0 {
		for _, b := range only {
			if !slices.Contains(backends, model.BackendType(b)) {
				return nil, fmt.Errorf("backend %q is not enabled in the configuration", b)
			}
		}
		backends = slices.DeleteFunc(backends, func(b model.BackendType) bool {
			return !slices.Contains(only, string(b))
		})
	}

	cloners := make([]orchestrator.Cloner, 0, len(backends))
	for _, b := range backends {
		s, err := newStore(ctx, b, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.DisplayName(), err)
		}
		cloners = append(cloners, engine.New(s))
	}

	svc := &service{}
	opts = append(opts, orchestrator.WithMetrics(metrics.Default()))
	if cfg.Audit.Path != "" {
		opts = append(opts, orchestrator.WithAudit(audit.NewFileAppender(cfg.Audit.Path)))
	}
	if cfg.Webhook.Enabled && len(cfg.Webhook.Hooks) > 0 {
		svc.notifier = webhook.NewClient(&cfg.Webhook)
		opts = append(opts, orchestrator.WithNotifier(svc.notifier))
	}
	svc.orch = orchestrator.New(cloners, opts...)
	return svc, nil
}

func fmtErr(format string, args ...any) {
	prefix := "foldersmith: "
	if color.Enabled() {
		prefix = color.Error("foldersmith:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
