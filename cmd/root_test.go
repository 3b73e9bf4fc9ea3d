package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/svcreg/internal/config"
)

// run executes a fresh root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

// writeConfig writes a minimal config file and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = "registry:\n  fault_buffer: 16\n"

func TestFilterCommand_Canonical(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)

	out, err := run(t, "-c", cfg, "filter", "(&(name=printer)(rank>=2))")
	require.NoError(t, err)
	assert.Equal(t, "canonical: (&(name=printer)(rank>=2))\n", out)
}

func TestFilterCommand_Match(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)

	tests := []struct {
		name  string
		props []string
		match bool
	}{
		{name: "all attributes match", props: []string{"name=printer", "rank=3"}, match: true},
		{name: "rank too low", props: []string{"name=printer", "rank=1"}, match: false},
		{name: "attribute missing", props: []string{"rank=3"}, match: false},
		{name: "key case ignored", props: []string{"NAME=Printer", "Rank=2"}, match: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"-c", cfg, "filter", "(&(name=printer)(rank>=2))"}
			for _, p := range tt.props {
				args = append(args, "--props", p)
			}
			out, err := run(t, args...)
			require.NoError(t, err)
			if tt.match {
				assert.Contains(t, out, "match: true\n")
			} else {
				assert.Contains(t, out, "match: false\n")
			}
		})
	}
}

func TestFilterCommand_Malformed(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)

	_, err := run(t, "-c", cfg, "filter", "(&(name=printer)")
	require.Error(t, err)
}

func TestFilterCommand_BadProperty(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)

	_, err := run(t, "-c", cfg, "filter", "(a=b)", "--props", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

func TestParseProps(t *testing.T) {
	dict, err := parseProps([]string{"name=printer", "rank=3", "ratio=0.5", "on=true", "tags=[a, b]", "empty="})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "rank", "ratio", "on", "tags", "empty"}, dict.Keys())

	rank, _ := dict.Get("rank")
	n, ok := rank.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	ratio, _ := dict.Get("ratio")
	f, ok := ratio.AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 0.5, f, 1e-9)

	on, _ := dict.Get("on")
	b, ok := on.AsBool()
	require.True(t, ok)
	assert.True(t, b)

	tags, _ := dict.Get("tags")
	assert.Len(t, tags.Items(), 2)

	empty, _ := dict.Get("empty")
	assert.Equal(t, "", empty.String())
}

const passingScenario = `name: printers
steps:
  - subscribe:
      id: watch
      filter: (objectClass=Printer)
      expect: [REGISTERED, UNREGISTERING]
  - register:
      id: p1
      types: [Printer]
      properties: {location: lab}
  - lookup:
      type: Printer
      expect: [p1]
  - unregister:
      id: p1
`

const failingScenario = `name: wrong expectations
steps:
  - subscribe:
      id: watch
      filter: (objectClass=Printer)
      expect: [MODIFIED]
  - register:
      id: p1
      types: [Printer]
`

func TestReplayCommand_Passes(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)
	path := filepath.Join(t.TempDir(), "printers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(passingScenario), 0o600))

	out, err := run(t, "-c", cfg, "replay", path)
	require.NoError(t, err)
	assert.Contains(t, out, "printers\n")
	assert.Contains(t, out, "REGISTERED")
	assert.Contains(t, out, "UNREGISTERING")
	assert.Contains(t, out, "  Printer -> [p1(0)]\n")
	assert.Contains(t, out, "PASS\n")
}

func TestReplayCommand_Mismatch(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(failingScenario), 0o600))

	out, err := run(t, "-c", cfg, "replay", path)
	require.ErrorIs(t, err, errScenarioFailed)
	assert.Contains(t, out, "FAIL ")
}

func TestReplayCommand_MissingFile(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)

	_, err := run(t, "-c", cfg, "replay", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRootCommand_BadConfig(t *testing.T) {
	cfg := writeConfig(t, "registry:\n  fault_buffer: -1\n")

	_, err := run(t, "-c", cfg, "filter", "(a=b)")
	require.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := run(t, "-c", path, "config", "init")
	require.NoError(t, err)
	assert.Equal(t, "wrote "+path+"\n", out)

	cfg, used, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, config.Defaults().Registry, cfg.Registry)

	_, err = run(t, "-c", path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "-c", path, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "-c", path, "config", "flag", "snapshot-diff", "off")
	require.NoError(t, err)
	assert.Equal(t, path+": snapshot-diff=false\n", out)

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	ff := cfg.FeatureFlags()
	assert.False(t, ff.Enabled("snapshot-diff"))
	assert.True(t, ff.Enabled("filter-cache"))

	out, err = run(t, "-c", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# source: "+path+"\n")
	assert.Contains(t, out, "snapshot-diff: false")
}

func TestConfigFlag_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "-c", path, "config", "flag", "no-such-flag", "on")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")

	_, err = run(t, "-c", path, "config", "flag", "filter-cache", "maybe")
	require.ErrorIs(t, err, errBadSwitch)
}

func TestParseSwitch(t *testing.T) {
	for _, s := range []string{"on", "ON", "true", "yes", "1"} {
		v, err := parseSwitch(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"off", "false", "no", "0"} {
		v, err := parseSwitch(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
}

func TestReplayRecordsHistory(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	good := filepath.Join(dir, "printers.yaml")
	bad := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(good, []byte(passingScenario), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(failingScenario), 0o600))

	_, err := run(t, "-c", cfg, "replay", "--history", db, good)
	require.NoError(t, err)
	_, err = run(t, "-c", cfg, "replay", "--history", db, bad)
	require.ErrorIs(t, err, errScenarioFailed)

	out, err := run(t, "-c", cfg, "history", "--db", db, "--failures")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "id  scenario"))
	assert.Contains(t, lines[1], "wrong expectations")
	assert.Contains(t, lines[1], "fail")
	assert.Contains(t, lines[2], "printers")
	assert.Contains(t, lines[2], "pass")
	assert.True(t, strings.HasPrefix(lines[3], "#2 "), lines[3])

	out, err = run(t, "-c", cfg, "history", "--db", db, "--scenario", "printers")
	require.NoError(t, err)
	assert.NotContains(t, out, "wrong expectations")
}

func TestHistoryCommand_NoDatabase(t *testing.T) {
	cfg := writeConfig(t, minimalConfig)

	_, err := run(t, "-c", cfg, "history")
	require.ErrorIs(t, err, errNoHistory)
}
