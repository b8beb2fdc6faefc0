package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/panyam/eventlink/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "eventlink", cmd.Use)
	assert.Contains(t, cmd.Long, "soak")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, cmdName := range []string{"run", "config"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())

			configFlag := subCmd.Flags().Lookup("config")
			require.NotNil(t, configFlag)
			assert.Equal(t, "c", configFlag.Shorthand)
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
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "--format", "json"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestConfigCommandGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	g.Assert(t, "config_default", []byte(execute(t, "config")))

	path := filepath.Join(t.TempDir(), "soak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: orders\nlog2_slots: 3\ncopy_arguments: true\npoll_interval: 5ms\n"), 0o600))
	g.Assert(t, "config_override", []byte(execute(t, "config", "--config", path)))
}

func TestConfigCommandRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0o600))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "-c", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestRunSoak(t *testing.T) {
	cfg := config.Default()
	cfg.Log2Slots = 3
	cfg.Workers = 3
	cfg.Listeners = 2
	cfg.Producers = 2
	cfg.EventsPerProd = 1000

	report, err := RunSoak(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), report.Produced)
	assert.Equal(t, uint64(2000), report.Consumed)
	assert.Equal(t, uint64(4000), report.Notifications)
	assert.Equal(t, 0, report.Snapshot.Ready)
	assert.Equal(t, 0, report.Snapshot.Reserved)
	assert.Equal(t, uint64(2000), report.Snapshot.Released)
	assert.Equal(t, int64(0), report.Dispatcher.InFlight)
	assert.Equal(t, uint64(0), report.Dispatcher.Abandoned)
}

func TestRunSoakCopyingArguments(t *testing.T) {
	cfg := config.Default()
	cfg.Log2Slots = 2
	cfg.CopyArguments = true
	cfg.NotifyListeners = false
	cfg.EventsPerProd = 500

	report, err := RunSoak(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), report.Consumed)
	assert.Equal(t, uint64(0), report.Notifications)
	assert.Equal(t, 0, report.Snapshot.Reserved)
}

func TestRunCommandYAMLReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: orders\nlog2_slots: 4\nevents_per_producer: 50\nlisteners: 1\n"), 0o600))

	out := execute(t, "run", "--config", path, "--format", "yaml")

	var report struct {
		Channel       string `yaml:"channel"`
		Produced      uint64 `yaml:"produced"`
		Consumed      uint64 `yaml:"consumed"`
		Notifications uint64 `yaml:"notifications"`
		Snapshot      struct {
			Capacity int `yaml:"capacity"`
			Ready    int `yaml:"ready"`
		} `yaml:"snapshot"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, "orders", report.Channel)
	assert.Equal(t, uint64(100), report.Produced)
	assert.Equal(t, uint64(100), report.Consumed)
	assert.Equal(t, uint64(100), report.Notifications)
	assert.Equal(t, 16, report.Snapshot.Capacity)
	assert.Equal(t, 0, report.Snapshot.Ready)
}

func TestRunCommandTextReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events_per_producer: 10\n"), 0o600))

	out := execute(t, "run", "-c", path)
	assert.Contains(t, out, `channel "events"`)
	assert.Contains(t, out, "consumed:       20")
}
