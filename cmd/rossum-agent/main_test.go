package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/config"
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	assert.True(t, names["serve"])
	assert.True(t, names["config"])
}

func TestConfigCmd_MasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  provider: mock\n  api-key: sk-secret\nplatform:\n  token: tok-secret\n"), 0o600))

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "provider: mock")
	assert.NotContains(t, out.String(), "sk-secret")
	assert.NotContains(t, out.String(), "tok-secret")
}

func TestBuildEngine_MockProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = "mock"
	cfg.Agent.Streaming = false
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "chats.db")
	cfg.Artifacts.Driver = "memory"
	cfg.Artifacts.OutputRoot = t.TempDir()

	engine, closer, err := buildEngine(context.Background(), cfg, logging.NewSlogLogger(logging.LogLevelError, "text", false), prometheus.NewRegistry())
	require.NoError(t, err)
	defer closer.Close()

	assert.Contains(t, engine.Registry().Names(), "deep_analysis")

	steps, err := engine.RunSync(context.Background(), "conv", "hello there")
	require.NoError(t, err)

	final, ok := steps[len(steps)-1].(core.FinalAnswerStep)
	require.True(t, ok)
	assert.Contains(t, final.Text, "hello there")

	_, md, err := engine.Runner().Store().Load(context.Background(), "conv")
	require.NoError(t, err)
	assert.Equal(t, 1, md.Turns)
}

func TestBuildEngine_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = "llama"

	_, _, err := buildEngine(context.Background(), cfg, logging.NewSlogLogger(logging.LogLevelError, "text", false), nil)

	var cerr *core.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "model.provider", cerr.Field)
}
