package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szhem/osgi-utils/internal/config"
	"github.com/szhem/osgi-utils/internal/filter"
	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
	"github.com/szhem/osgi-utils/internal/testutil"
)

// env is a temp config and database for one test.
type env struct {
	configPath string
	dbPath     string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		configPath: filepath.Join(dir, "config.yaml"),
		dbPath:     filepath.Join(dir, "data", "registry.db"),
	}
	require.NoError(t, config.WriteDefaultConfig(e.configPath))
	return e
}

// resetFlags puts every flag back to its default, since cobra keeps flag
// values between executions of the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	// Cobra only sets a subcommand's context when it is nil, so clear the
	// previous execution's (possibly cancelled) context.
	c.SetContext(nil)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeContext(ctx context.Context, out, errOut *syncBuffer, args ...string) error {
	resetFlags(rootCmd)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut syncBuffer
	args = append([]string{"--config", e.configPath, "--db", e.dbPath}, args...)
	err := executeContext(t.Context(), &out, &errOut, args...)
	return out.String(), err
}

func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err)
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFilterCommand(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "filter", "( & (a=b) (c=d) )")
	assert.Equal(t, "(&(a=b)(c=d))\n", out)

	out = e.mustRun(t, "filter", "(ranking>=5)", "--match", "ranking=10")
	assert.Equal(t, "(ranking>=5)\ntrue\n", out)

	out = e.mustRun(t, "filter", "(ranking>=5)", "-m", "ranking=4")
	assert.Equal(t, "(ranking>=5)\nfalse\n", out)
}

func TestFilterCommand_Malformed(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "filter", "(&(a=b)")
	require.ErrorIs(t, err, filter.ErrMalformed)

	_, err = e.run(t, "filter", "(a=b)", "--match", "novalue")
	require.ErrorIs(t, err, errInvalidAttribute)
}

func TestPublishListWithdraw(t *testing.T) {
	e := newEnv(t)

	greeter := strings.TrimSpace(e.mustRun(t, "publish",
		"--interface", "com.acme.Greeter", "--attr", "region=eu", "--attr", "ranking=10"))
	require.NotEmpty(t, greeter)
	clock := strings.TrimSpace(e.mustRun(t, "publish", "-i", "com.acme.Clock", "-a", "region=us"))
	require.NotEqual(t, greeter, clock)

	out := e.mustRun(t, "list")
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "com.acme.Greeter ranking=10 region=eu")
	assert.Contains(t, out, "com.acme.Clock region=us")

	out = e.mustRun(t, "list", "--filter", "(ranking>=5)")
	assert.Contains(t, out, "com.acme.Greeter")
	assert.NotContains(t, out, "com.acme.Clock")

	out = e.mustRun(t, "list", "--stored")
	assert.Contains(t, out, greeter+" com.acme.Greeter\n")
	assert.Contains(t, out, clock+" com.acme.Clock\n")

	out = e.mustRun(t, "withdraw", greeter)
	assert.Equal(t, "withdrawn "+greeter+"\n", out)

	out = e.mustRun(t, "list")
	assert.NotContains(t, out, "com.acme.Greeter")
	assert.Contains(t, out, "com.acme.Clock")

	_, err := e.run(t, "withdraw", greeter)
	require.ErrorIs(t, err, sqlite.ErrPublicationNotFound)
}

func TestList_Formats(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "publish", "-i", "com.acme.Greeter", "-a", "region=eu")

	out := e.mustRun(t, "list", "-o", "yaml")
	assert.Contains(t, out, "- id: 1")
	assert.Contains(t, out, "region: eu")

	out = e.mustRun(t, "list", "-o", "json")
	assert.Contains(t, out, `"interfaces": [`)
	assert.Contains(t, out, `"region": "eu"`)

	_, err := e.run(t, "list", "-o", "xml")
	require.Error(t, err)

	_, err = e.run(t, "list", "--filter", "(region=")
	require.ErrorIs(t, err, filter.ErrMalformed)
}

func TestList_FilterOverStandardData(t *testing.T) {
	e := newEnv(t)
	db := testutil.NewTestDB(t)
	testutil.NewBuilder(t, db).WithStandardTestData().Build()
	e.dbPath = db.Path()

	tests := []struct {
		filter string
		want   int
	}{
		{"(objectClass=com.acme.Greeter)", 3},
		{"(&(objectClass=com.acme.Greeter)(region=eu))", 2},
		{"(service.ranking>=5)", 1},
		{"(tags=green)", 1},
		{"(capacity<=1024)", 1},
		{"(!(region=eu))", 2},
		{"(region=mars)", 0},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			out := e.mustRun(t, "list", "--filter", tt.filter)
			assert.Equal(t, tt.want, strings.Count(out, "\n"), out)
		})
	}
}

func TestList_EmptyDatabase(t *testing.T) {
	e := newEnv(t)
	assert.Empty(t, e.mustRun(t, "list"))
}

func TestPublish_Validation(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "publish")
	require.Error(t, err, "--interface is required")

	_, err = e.run(t, "publish", "-i", "com.acme.Greeter", "-a", "=x")
	require.ErrorIs(t, err, errInvalidAttribute)

	_, err = e.run(t, "publish", "-i", "com.acme.Greeter", "-o", "xml")
	require.Error(t, err)
}

func TestPublish_JSONOutput(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "publish", "-i", "com.acme.Greeter", "-a", "port=8080", "-o", "json")
	assert.Contains(t, out, `"key": "`)
	assert.Contains(t, out, `"port": 8080`)
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osgi", "config.yaml")
	var out, errOut syncBuffer

	require.NoError(t, executeContext(t.Context(), &out, &errOut, "--config", path, "config", "init"))
	assert.Contains(t, out.String(), "wrote "+path)

	err := executeContext(t.Context(), &out, &errOut, "--config", path, "config", "init")
	require.Error(t, err, "existing file is kept")
	require.NoError(t, executeContext(t.Context(), &out, &errOut, "--config", path, "config", "init", "--force"))

	var diff syncBuffer
	require.NoError(t, executeContext(t.Context(), &diff, &errOut, "--config", path, "config", "diff"))
	assert.Contains(t, diff.String(), "matches the defaults")

	require.NoError(t, executeContext(t.Context(), &out, &errOut, "--config", path, "config", "set", "tracker.buffer_size", "128"))
	err = executeContext(t.Context(), &out, &errOut, "--config", path, "config", "set", "tracker.buffer_size", "-1")
	require.ErrorIs(t, err, config.ErrInvalid)
	err = executeContext(t.Context(), &out, &errOut, "--config", path, "config", "set", "no.such_key", "1")
	require.ErrorIs(t, err, config.ErrInvalid)

	var show syncBuffer
	require.NoError(t, executeContext(t.Context(), &show, &errOut, "--config", path, "config", "show"))
	assert.Contains(t, show.String(), "buffer_size: 128")
	assert.Contains(t, show.String(), "debounce: 100ms")

	var changed syncBuffer
	require.NoError(t, executeContext(t.Context(), &changed, &errOut, "--config", path, "config", "diff"))
	assert.Contains(t, changed.String(), "buffer_size: 128")
	assert.NotContains(t, changed.String(), "matches the defaults")
}

func TestInvalidConfigIsReported(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.configPath, []byte("tracker:\n  buffer_size: -1\n"), 0o600))

	_, err := e.run(t, "list")
	require.ErrorIs(t, err, config.ErrInvalid)

	// config commands still work on a broken file.
	e.mustRun(t, "config", "set", "tracker.buffer_size", "32")
	e.mustRun(t, "list")
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	e := newEnv(t)
	t.Setenv("OSGI_UTILS_LOG_LEVEL", "loud")

	_, err := e.run(t, "list")
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestWatchPlain(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "publish", "-i", "com.acme.Greeter", "-a", "region=eu")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var out, errOut syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- executeContext(ctx, &out, &errOut,
			"--config", e.configPath, "--db", e.dbPath,
			"watch", "--plain", "--filter", "(region=eu)")
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "+ #1 com.acme.Greeter region=eu")
	}, 5*time.Second, 10*time.Millisecond, "backfilled entry is printed")

	// A second connection writes while watch is running.
	db, err := sqlite.NewDB(e.dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	clock, err := db.Publications().Insert(t.Context(), []string{"com.acme.Clock"}, map[string]any{"region": "eu"})
	require.NoError(t, err)
	_, err = db.Publications().Insert(t.Context(), []string{"com.acme.Store"}, map[string]any{"region": "us"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hasLine(out.String(), "+ #", " com.acme.Clock region=eu")
	}, 5*time.Second, 10*time.Millisecond, "published entry is tracked")

	require.NoError(t, db.Publications().Delete(t.Context(), clock.Key))
	require.Eventually(t, func() bool {
		return hasLine(out.String(), "- #", " com.acme.Clock region=eu")
	}, 5*time.Second, 10*time.Millisecond, "withdrawn entry is dropped")

	assert.NotContains(t, out.String(), "com.acme.Store")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func hasLine(out, prefix, suffix string) bool {
	for line := range strings.Lines(out) {
		line = strings.TrimSuffix(line, "\n")
		if strings.HasPrefix(line, prefix) && strings.HasSuffix(line, suffix) {
			return true
		}
	}
	return false
}

func TestWatch_MalformedFilter(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "watch", "--plain", "--filter", "(a=")
	require.ErrorIs(t, err, filter.ErrMalformed)
}
