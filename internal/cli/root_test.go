package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersmith/foldersmith/internal/audit"
	"github.com/foldersmith/foldersmith/internal/store"
	"github.com/foldersmith/foldersmith/internal/store/memstore"
	"github.com/foldersmith/foldersmith/pkg/config"
	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/model"
)

const testConfig = `backends: [google-drive, quip]
drive:
  credentials_file: /dev/null
quip:
  access_token: quip-secret-token
slack:
  bot_token: xoxb-secret
  signing_secret: signing-secret
logging:
  level: error
`

// testEnv points the CLI at a config file and in-memory backends.
type testEnv struct {
	dir    string
	stores map[model.BackendType]*memstore.Store
}

func setupTest(t *testing.T, cfgYAML string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{"SLACK_BOT_TOKEN", "SLACK_SIGNING_SECRET", "QUIP_ACCESS_TOKEN", "GOOGLE_SERVICE_ACCOUNT_KEY_PATH", "PORT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	path := filepath.Join(dir, "foldersmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0o600))

	env := &testEnv{dir: dir, stores: map[model.BackendType]*memstore.Store{}}
	for _, b := range []model.BackendType{model.BackendGoogleDrive, model.BackendQuip} {
		s := memstore.New(b)
		s.AddFolder("", "ClientA")
		tmpl := s.AddFolder("", "Template")
		s.AddDocument(tmpl.ID, "Brief")
		env.stores[b] = s
	}

	oldStore := newStore
	newStore = func(ctx context.Context, b model.BackendType, cfg *config.Config) (store.Store, error) {
		if s, ok := env.stores[b]; ok {
			return s, nil
		}
		return store.New(ctx, b, cfg)
	}
	t.Cleanup(func() {
		newStore = oldStore
		loaded, loadedErr = nil, nil
	})

	loaded, loadedErr = nil, nil
	jsonOutput, noColor, configPath, logLevel = false, false, "", ""
	cloneBackends, cloneSequential = nil, false
	configInitForce, doctorProbe = false, false
	return env
}

func executeCommand(args ...string) (string, error) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	setupTest(t, testConfig)
	stdout, err := executeCommand("--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "template folder tree")
}

func TestCloneCommand_AllBackends(t *testing.T) {
	env := setupTest(t, testConfig)

	stdout, err := executeCommand("clone", "ClientA", "Template", "NewProject")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Google Drive folder structure cloned!"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Quip folder structure cloned!"), lines[1])
	assert.Equal(t, 2, env.stores[model.BackendQuip].Mutations())
}

func TestCloneCommand_JSON(t *testing.T) {
	setupTest(t, testConfig)

	stdout, err := executeCommand("--json", "clone", "ClientA", "Template", "NewProject")
	require.NoError(t, err)

	var report struct {
		RequestID string `json:"request_id"`
		Results   []struct {
			Backend string `json:"backend"`
			Status  string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.NotEmpty(t, report.RequestID)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "cloned", report.Results[1].Status)
}

func TestCloneCommand_ExistingDestination(t *testing.T) {
	env := setupTest(t, testConfig)
	root, err := env.stores[model.BackendQuip].FindByName(context.Background(), nil, "ClientA")
	require.NoError(t, err)
	env.stores[model.BackendQuip].AddFolder(root.ID, "NewProject")

	stdout, err := executeCommand("clone", "ClientA", "Template", "NewProject")
	assert.ErrorIs(t, err, errIncomplete)
	assert.Contains(t, stdout, "A folder named 'NewProject' already exists in 'ClientA' in Quip. Creation canceled.")
	assert.Contains(t, stdout, "Google Drive folder structure cloned!")
}

func TestCloneCommand_SingleBackend(t *testing.T) {
	env := setupTest(t, testConfig)

	stdout, err := executeCommand("clone", "--backend", "quip", "ClientA", "Template", "NewProject")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Google Drive")
	assert.Zero(t, env.stores[model.BackendGoogleDrive].Mutations())
}

func TestCloneCommand_BackendNotEnabled(t *testing.T) {
	setupTest(t, testConfig)

	_, err := executeCommand("clone", "--backend", "local", "ClientA", "Template", "NewProject")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}

func TestCloneCommand_InvalidConfig(t *testing.T) {
	setupTest(t, "backends: [quip]\n")

	_, err := executeCommand("clone", "ClientA", "Template", "NewProject")
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)
}

func TestCloneCommand_BlankName(t *testing.T) {
	setupTest(t, testConfig)

	_, err := executeCommand("clone", "ClientA", " ", "NewProject")
	assert.ErrorIs(t, err, errclass.ErrRequestInvalid)
}

func TestCloneCommand_Audit(t *testing.T) {
	env := setupTest(t, testConfig+"audit:\n  path: audit.jsonl\n")

	_, err := executeCommand("clone", "ClientA", "Template", "NewProject")
	require.NoError(t, err)

	n, err := audit.Verify(filepath.Join(env.dir, "audit.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stdout, err := executeCommand("audit", "verify")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 records verified")
}

func TestAuditVerify_NotConfigured(t *testing.T) {
	setupTest(t, testConfig)

	_, err := executeCommand("audit", "verify")
	assert.Error(t, err)
}

func TestConfigShow_MasksCredentials(t *testing.T) {
	setupTest(t, testConfig)

	stdout, err := executeCommand("config", "show")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "quip-secret-token")
	assert.NotContains(t, stdout, "xoxb-secret")
	assert.Contains(t, stdout, "********")
}

func TestConfigInit(t *testing.T) {
	env := setupTest(t, testConfig)
	path := filepath.Join(env.dir, "new.yaml")

	stdout, err := executeCommand("config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Backends, cfg.Backends)

	_, err = executeCommand("config", "init", path)
	assert.Error(t, err)

	_, err = executeCommand("config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestDoctorCommand(t *testing.T) {
	setupTest(t, testConfig)

	stdout, err := executeCommand("doctor", "--probe")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Installation is healthy.")
}

func TestDoctorCommand_Unhealthy(t *testing.T) {
	setupTest(t, "backends: [local]\n")

	stdout, err := executeCommand("doctor")
	assert.ErrorIs(t, err, errUnhealthy)
	assert.Contains(t, stdout, "[critical] config")
}

func TestServeMux(t *testing.T) {
	cfg := config.Default()
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux := newServeMux(cfg, events)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodPost, "/slack/events", http.StatusTeapot},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, "%s %s", tt.method, tt.path)
	}
}
