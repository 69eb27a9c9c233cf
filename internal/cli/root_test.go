package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifeline/internal/testutil"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, opts *RootOptions, stdin string, args ...string) (string, string, error) {
	t.Helper()
	if opts == nil {
		opts = &RootOptions{}
	}
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func pinned(t *testing.T) (*RootOptions, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock(testNow)
	return &RootOptions{Clock: clk}, clk
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lifeline", cmd.Use)
	assert.Contains(t, cmd.Long, "Emergency record toolkit")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"build", "decode", "scan", "qr", "serve", "login", "chat", "profile", "drill"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}

	sub, _, err := cmd.Find([]string{"profile", "validate"})
	require.NoError(t, err)
	assert.Equal(t, "validate", sub.Name())
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestBuildCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	buildCmd, _, err := cmd.Find([]string{"build"})
	require.NoError(t, err)

	for _, name := range []string{"profile", "lat", "lng", "address", "ttl", "png", "offline"} {
		assert.NotNil(t, buildCmd.Flags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "p", buildCmd.Flags().Lookup("profile").Shorthand)
}

func TestScanCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	scanCmd, _, err := cmd.Find([]string{"scan"})
	require.NoError(t, err)

	manual := scanCmd.Flags().Lookup("manual")
	require.NotNil(t, manual)
	assert.Equal(t, "true", manual.DefValue)

	responder := scanCmd.Flags().Lookup("responder")
	require.NotNil(t, responder)
	assert.Equal(t, "cli-responder", responder.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	assert.NotNil(t, serveCmd.Flags().Lookup("addr"))
	assert.NotNil(t, serveCmd.Flags().Lookup("db"))
	seed := serveCmd.Flags().Lookup("seed-demo")
	require.NotNil(t, seed)
	assert.Equal(t, "true", seed.DefValue)
}

func TestDrillCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	drillCmd, _, err := cmd.Find([]string{"drill"})
	require.NoError(t, err)

	updateFlag := drillCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	assert.NotNil(t, drillCmd.Flags().Lookup("filter"))
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, nil, "", "--format", "xml", "decode", "{}")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, nil, "", "--config", "/nonexistent/lifeline.yaml", "decode", "{}")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
