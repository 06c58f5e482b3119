package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCmd(nil, &stdout, &stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Equal(t, "deployer "+version.String()+"\n", out)
}

func TestDeployCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "deploy", "--config", filepath.Join(t.TempDir(), "deploy.yaml"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeployCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: shop\n"), 0o644))

	_, err := execute(t, "deploy", "-c", path)

	assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)
}

func TestPlanCommand_RejectsUnknownAction(t *testing.T) {
	_, err := execute(t, "plan", "sideways")

	assert.Error(t, err)
}

func TestPlanCommand_RejectsExtraArguments(t *testing.T) {
	_, err := execute(t, "plan", "update", "rollback")

	assert.Error(t, err)
}

func TestRootCommand_ListsSubcommands(t *testing.T) {
	root := newRootCmd(nil, &bytes.Buffer{}, &bytes.Buffer{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.Subset(t, names, []string{"deploy", "rollback", "cleanup", "plan", "version"})
}

func TestNewApp_LogFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	logPath := filepath.Join(dir, "deploy.log")
	cfg := "project: shop\nhosts: [web1]\nremote_dir: /srv/shop\nlocal_dir: " + dir +
		"\nmetrics:\n  enabled: false\nlog:\n  file: " + logPath + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	var stderr bytes.Buffer
	a, err := newApp(&globalOptions{configPath: path, logLevel: "debug", logFormat: "json"}, nil, &stderr)
	require.NoError(t, err)

	a.logger.Debug(context.Background(), "hello")
	a.Close(context.Background())

	assert.Contains(t, stderr.String(), `"msg":"hello"`)
	assert.Contains(t, stderr.String(), `"run_id":"`+a.orch.RunID()+`"`)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Nil(t, a.pusher)
}
