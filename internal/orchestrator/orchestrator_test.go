package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/foldersmith/foldersmith/internal/engine"
	"github.com/foldersmith/foldersmith/internal/orchestrator"
	"github.com/foldersmith/foldersmith/internal/store/memstore"
	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/metrics"
	"github.com/foldersmith/foldersmith/pkg/model"
	"github.com/foldersmith/foldersmith/pkg/webhook"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var req = model.CloneRequest{RootName: "ClientA", TemplateName: "Template", DestinationName: "NewProject"}

func seeded(backend model.BackendType) *memstore.Store {
	s := memstore.New(backend)
	s.AddFolder("", "ClientA")
	tmpl := s.AddFolder("", "Template")
	s.AddDocument(tmpl.ID, "Brief")
	return s
}

// stubCloner returns a fixed status after an optional delay and tracks how
// many clones run at once.
type stubCloner struct {
	backend model.BackendType
	status  model.CloneStatus
	delay   time.Duration
	running *atomic.Int32
	peak    *atomic.Int32
	calls   atomic.Int32
}

func (s *stubCloner) Type() model.BackendType { return s.backend }

func (s *stubCloner) Clone(ctx context.Context, req model.CloneRequest) (*model.CloneResult, error) {
	s.calls.Add(1)
	if s.running != nil {
		n := s.running.Add(1)
		defer s.running.Add(-1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	time.Sleep(s.delay)
	return &model.CloneResult{Backend: s.backend, Status: s.status, Request: req, Link: "link-" + string(s.backend)}, nil
}

type recorderFunc func(string, *model.CloneResult) error

func (f recorderFunc) Append(id string, res *model.CloneResult) error { return f(id, res) }

type notifierFunc func(webhook.Event, bool) error

func (f notifierFunc) Send(ev webhook.Event, async bool) error { return f(ev, async) }

func TestCloneAll_BothBackends(t *testing.T) {
	drive := seeded(model.BackendGoogleDrive)
	quip := seeded(model.BackendQuip)
	o := orchestrator.New([]orchestrator.Cloner{engine.New(drive), engine.New(quip)})

	report, err := o.CloneAll(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.True(t, report.OK())
	assert.NotEmpty(t, report.RequestID)
	assert.Equal(t, model.BackendGoogleDrive, report.Results[0].Backend)
	assert.Equal(t, model.BackendQuip, report.Results[1].Backend)
	assert.Equal(t, []model.BackendType{model.BackendGoogleDrive, model.BackendQuip}, o.Backends())
}

func TestCloneAll_KeepsConfiguredOrder(t *testing.T) {
	slow := &stubCloner{backend: model.BackendGoogleDrive, status: model.StatusCloned, delay: 50 * time.Millisecond}
	fast := &stubCloner{backend: model.BackendQuip, status: model.StatusCloned}

	report, err := orchestrator.New([]orchestrator.Cloner{slow, fast}).CloneAll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.BackendGoogleDrive, report.Results[0].Backend)
	assert.Equal(t, model.BackendQuip, report.Results[1].Backend)
}

func TestCloneAll_BackendsAreIndependent(t *testing.T) {
	drive := seeded(model.BackendGoogleDrive)
	drive.FailAfter(memstore.OpFind, 0, errors.New("drive down"))
	quip := seeded(model.BackendQuip)

	report, err := orchestrator.New([]orchestrator.Cloner{engine.New(drive), engine.New(quip)}).
		CloneAll(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, model.StatusBackendError, report.Results[0].Status)
	assert.Equal(t, model.StatusCloned, report.Results[1].Status)
	assert.Equal(t, 2, quip.Mutations())
}

func TestCloneAll_InvalidRequestContactsNoBackend(t *testing.T) {
	stub := &stubCloner{backend: model.BackendQuip, status: model.StatusCloned}
	recorded := false
	o := orchestrator.New([]orchestrator.Cloner{stub},
		orchestrator.WithAudit(recorderFunc(func(string, *model.CloneResult) error {
			recorded = true
			return nil
		})))

	report, err := o.CloneAll(context.Background(), model.CloneRequest{RootName: "ClientA"})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, errclass.ErrRequestInvalid)
	assert.Zero(t, stub.calls.Load())
	assert.False(t, recorded)
}

func TestCloneAll_RunsConcurrently(t *testing.T) {
	var running, peak atomic.Int32
	cloners := []orchestrator.Cloner{
		&stubCloner{backend: model.BackendGoogleDrive, status: model.StatusCloned, delay: 30 * time.Millisecond, running: &running, peak: &peak},
		&stubCloner{backend: model.BackendQuip, status: model.StatusCloned, delay: 30 * time.Millisecond, running: &running, peak: &peak},
	}

	_, err := orchestrator.New(cloners).CloneAll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), peak.Load())
}

func TestCloneAll_Sequential(t *testing.T) {
	var running, peak atomic.Int32
	cloners := []orchestrator.Cloner{
		&stubCloner{backend: model.BackendGoogleDrive, status: model.StatusCloned, delay: 10 * time.Millisecond, running: &running, peak: &peak},
		&stubCloner{backend: model.BackendQuip, status: model.StatusCloned, delay: 10 * time.Millisecond, running: &running, peak: &peak},
	}

	_, err := orchestrator.New(cloners, orchestrator.Sequential()).CloneAll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestCloneAll_Observers(t *testing.T) {
	var (
		mu       sync.Mutex
		recorded []model.CloneStatus
		events   []webhook.EventType
		ids      = map[string]bool{}
	)
	reg := metrics.NewRegistry()
	o := orchestrator.New(
		[]orchestrator.Cloner{
			&stubCloner{backend: model.BackendGoogleDrive, status: model.StatusCloned},
			&stubCloner{backend: model.BackendQuip, status: model.StatusRootNotFound},
		},
		orchestrator.WithMetrics(reg),
		orchestrator.WithAudit(recorderFunc(func(id string, res *model.CloneResult) error {
			mu.Lock()
			defer mu.Unlock()
			recorded = append(recorded, res.Status)
			ids[id] = true
			return errors.New("disk full")
		})),
		orchestrator.WithNotifier(notifierFunc(func(ev webhook.Event, async bool) error {
			mu.Lock()
			defer mu.Unlock()
			assert.True(t, async)
			events = append(events, ev.Event)
			return nil
		})),
		orchestrator.Sequential(),
	)

	report, err := o.CloneAll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCloned, report.Results[0].Status, "observer errors never change outcomes")

	assert.Equal(t, []model.CloneStatus{model.StatusCloned, model.StatusRootNotFound}, recorded)
	assert.Equal(t, []webhook.EventType{webhook.EventCloneCompleted, webhook.EventCloneRejected}, events)
	assert.Equal(t, map[string]bool{report.RequestID: true}, ids)

	count, err := testutil.GatherAndCount(reg.Gatherer(), "foldersmith_clone_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
