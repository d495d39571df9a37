package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "claimwiz", cmd.Use)
	assert.Contains(t, cmd.Long, "offline")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"status"}, {"goto"}, {"next"}, {"prev"}, {"submit"}, {"validate"},
		{"report"}, {"reset"}, {"probe"}, {"watch"},
		{"queue", "list"}, {"queue", "drain"},
		{"assets", "install"}, {"assets", "fetch"},
	}

	for _, path := range commands {
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "offline"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestSetFlag(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"next", "prev", "goto", "submit", "validate"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		flag := sub.Flags().Lookup("set")
		require.NotNil(t, flag, name)
		assert.Equal(t, "s", flag.Shorthand)
	}
}

// cliEnv is an isolated config, database and submit endpoint.
type cliEnv struct {
	configPath string

	mu        sync.Mutex
	delivered []string
	status    int
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		env.mu.Lock()
		defer env.mu.Unlock()
		if r.Method == http.MethodPost && env.status < 300 {
			env.delivered = append(env.delivered, r.Header.Get("X-Submission-Id"))
		}
		w.WriteHeader(env.status)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	form := filepath.Join(dir, "form.cue")
	require.NoError(t, os.WriteFile(form, []byte(`
wizard: {
	name: "cli"
	steps: [{
		id:    "contact"
		title: "Contact"
		fields: [{name: "email", kind: "email", required: true}]
	}, {
		id:    "confirm"
		title: "Confirm"
		fields: [{name: "termsAgreement", kind: "checkbox", label: "Terms", required: true}]
	}]
}
`), 0o644))

	env.configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(env.configPath, []byte(
		"database: "+filepath.Join(dir, "claimwiz.db")+"\n"+
			"submit_url: "+srv.URL+"/submit\n"+
			"probe_url: "+srv.URL+"/ping\n"+
			"total_steps: 2\n"+
			"form: "+form+"\n"+
			"log_level: error\n",
	), 0o644))
	return env
}

func (e *cliEnv) setStatus(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = code
}

func (e *cliEnv) deliveredIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.delivered...)
}

// run executes one claimwiz invocation with JSON output.
func (e *cliEnv) run(t *testing.T, args ...string) (CLIResponse, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--format", "json"}, args...))
	err := cmd.ExecuteContext(t.Context())

	var resp CLIResponse
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
	}
	return resp, err
}

func dataField(t *testing.T, resp CLIResponse, key string) any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data[key]
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "yaml", "status"})

	err := cmd.ExecuteContext(t.Context())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWizardFlow(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.run(t, "status")
	require.NoError(t, err)
	assert.Equal(t, float64(1), dataField(t, resp, "current_step"))
	assert.Equal(t, "online", dataField(t, resp, "connectivity"))

	resp, err = env.run(t, "next", "--set", "email=nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)

	resp, err = env.run(t, "next", "--set", "email=filer@example.com")
	require.NoError(t, err)
	assert.Equal(t, float64(2), dataField(t, resp, "current_step"))
	assert.Equal(t, float64(100), dataField(t, resp, "percent"))

	resp, err = env.run(t, "goto", "7")
	require.Error(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTransition, resp.Error.Code)

	resp, err = env.run(t, "submit", "--set", "termsAgreement=true")
	require.NoError(t, err)
	assert.Equal(t, true, dataField(t, resp, "delivered"))
	assert.Len(t, env.deliveredIDs(), 1)

	resp, err = env.run(t, "submit")
	require.Error(t, err, "a completed wizard cannot submit twice")
	assert.Equal(t, ErrCodeTransition, resp.Error.Code)

	resp, err = env.run(t, "report")
	require.NoError(t, err)
	assert.Equal(t, float64(2), dataField(t, resp, "current_step"))
}

func TestOfflineSubmitThenDrain(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "next", "--set", "email=filer@example.com")
	require.NoError(t, err)

	resp, err := env.run(t, "--offline", "submit", "--set", "termsAgreement=yes")
	require.NoError(t, err)
	assert.Equal(t, false, dataField(t, resp, "delivered"))
	assert.Empty(t, env.deliveredIDs())

	resp, err = env.run(t, "queue", "list")
	require.NoError(t, err)
	envs, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, envs, 1)

	resp, err = env.run(t, "--offline", "queue", "drain")
	require.Error(t, err)
	assert.Equal(t, ErrCodeOffline, resp.Error.Code)

	resp, err = env.run(t, "queue", "drain")
	require.NoError(t, err)
	assert.Len(t, dataField(t, resp, "delivered"), 1)
	assert.Len(t, env.deliveredIDs(), 1)
}

func TestDrainFailureKeepsSubmission(t *testing.T) {
	env := newCLIEnv(t)
	env.setStatus(http.StatusServiceUnavailable)

	_, err := env.run(t, "next", "--set", "email=filer@example.com")
	require.NoError(t, err)
	_, err = env.run(t, "submit", "--set", "termsAgreement=on")
	require.NoError(t, err, "queued even though delivery failed")

	resp, err := env.run(t, "queue", "drain")
	require.Error(t, err)
	assert.Equal(t, ErrCodeDelivery, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "2 attempts")

	env.setStatus(http.StatusOK)
	_, err = env.run(t, "queue", "drain")
	require.NoError(t, err)
	assert.Len(t, env.deliveredIDs(), 1)
}

func TestValidateAndReset(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.run(t, "validate", "--set", "email=bad")
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)

	resp, err = env.run(t, "validate", "--set", "email=filer@example.com")
	require.NoError(t, err)
	assert.Equal(t, true, dataField(t, resp, "valid"))

	_, err = env.run(t, "next")
	require.NoError(t, err, "next uses the values saved by --set")

	resp, err = env.run(t, "reset")
	require.NoError(t, err)
	assert.Equal(t, float64(1), dataField(t, resp, "current_step"))
}

func TestProbe(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.run(t, "probe")
	require.NoError(t, err)
	assert.Equal(t, "online", dataField(t, resp, "state"))
}

func TestAssetsInstallAndFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{margin:0}"))
	}))
	defer srv.Close()
	env := newCLIEnv(t)
	css := srv.URL + "/styles.css"

	resp, err := env.run(t, "assets", "install", css)
	require.NoError(t, err)
	assert.Equal(t, "tax-filing-cache-v1", dataField(t, resp, "cache"))

	srv.Close()
	resp, err = env.run(t, "assets", "fetch", css)
	require.NoError(t, err)
	assert.Equal(t, "cache", dataField(t, resp, "source"))
	assert.Equal(t, float64(len("body{margin:0}")), dataField(t, resp, "size"))
}

func TestRenderStatus_OfflineBanner(t *testing.T) {
	out := renderStatus(StatusView{Connectivity: "offline"})
	assert.Contains(t, out, "You're offline")

	out = renderStatus(StatusView{Connectivity: "online"})
	assert.NotContains(t, out, "You're offline")
}
