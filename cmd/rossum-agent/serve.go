package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"

	rossumagents "github.com/stancld/rossum-agents-sub001"
	"github.com/stancld/rossum-agents-sub001/artifact"
	"github.com/stancld/rossum-agents-sub001/artifact/s3"
	"github.com/stancld/rossum-agents-sub001/config"
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/model"
	anthropicmodel "github.com/stancld/rossum-agents-sub001/model/anthropic"
	openaimodel "github.com/stancld/rossum-agents-sub001/model/openai"
	"github.com/stancld/rossum-agents-sub001/observability"
	"github.com/stancld/rossum-agents-sub001/server"
	"github.com/stancld/rossum-agents-sub001/session"
	"github.com/stancld/rossum-agents-sub001/subagent"
)

const analysisPrompt = `You answer one self-contained analysis question thoroughly.
Reply with your findings only; you cannot ask follow-up questions.`

// runServe builds the service from cfg and serves until ctx is done.
func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)

	logger.Info("serve.start",
		"version", version,
		"commit", commit,
		"addr", cfg.Server.Addr,
		"model_provider", cfg.Model.Provider,
		"storage_driver", cfg.Storage.Driver,
		"artifacts_driver", cfg.Artifacts.Driver,
	)

	engine, closer, err := buildEngine(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("serve.close_failed", "error", err.Error())
		}
	}()

	srv := server.New(engine.Runner(), func(o *server.Options) {
		o.Logger = logger
		o.Gatherer = prometheus.DefaultGatherer
		o.ShutdownTimeout = cfg.Server.ShutdownTimeout
	})

	err = srv.ListenAndServe(ctx, cfg.Server.Addr)
	logger.Info("serve.stop")

	return err
}

// buildEngine is the composition root: it turns cfg into a ready Engine.
// The returned closer releases the chat store.
func buildEngine(ctx context.Context, cfg config.Config, logger *logging.RunLogger, reg prometheus.Registerer) (*rossumagents.Engine, io.Closer, error) {
	core.SetDefaultCredentials(cfg.Platform.Credentials())

	outputRoot := cfg.Artifacts.OutputRoot
	if outputRoot == "" {
		outputRoot = filepath.Join(os.TempDir(), "rossum-agent-outputs")
	}
	core.SetDefaultOutputRoot(outputRoot)

	llm, err := buildModel(cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	store, closer, err := buildStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	artifacts, err := buildArtifacts(ctx, cfg.Artifacts, outputRoot)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	var metrics *observability.Metrics
	if reg != nil {
		metrics = observability.NewMetrics(reg)
	}

	engine, err := rossumagents.New(llm, func(o *rossumagents.Options) {
		if cfg.Agent.Instruction != "" {
			o.Instruction = cfg.Agent.Instruction
		}
		o.MaxSteps = cfg.Agent.MaxSteps
		o.MaxTokens = cfg.Model.MaxTokens
		o.ThinkingBudget = cfg.Model.ThinkingBudget
		o.MaxParallelTools = cfg.Agent.MaxParallelTools
		o.DisableStreaming = !cfg.Agent.Streaming
		o.CollapsibleTools = cfg.Agent.CollapsibleTools
		o.CatalogTTL = cfg.Agent.CatalogTTL
		o.KeepaliveInterval = cfg.Server.KeepaliveInterval
		o.WatchInterval = cfg.Server.WatchInterval
		o.SubAgents = []rossumagents.SubAgent{{
			Config: subagent.Config{
				ToolName:       "deep_analysis",
				SystemPrompt:   analysisPrompt,
				MaxIterations:  cfg.SubAgent.MaxIterations,
				MaxTokens:      cfg.SubAgent.MaxTokens,
				ThinkingBudget: cfg.SubAgent.ThinkingBudget,
			},
			Description: "Delegate a self-contained analysis question to a focused sub-agent and get its findings back.",
			StreamText:  true,
		}}
		o.Store = store
		o.Artifacts = artifacts
		o.OutputRoot = outputRoot
		o.Logger = logger
		o.Metrics = metrics
	})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	return engine, closer, nil
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
		}), nil
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
		}), nil
	case "mock":
		return model.NewMockModel("mock", "mock"), nil
	default:
		return nil, core.NewConfigError("model.provider", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func buildStore(cfg config.Config) (session.Store, io.Closer, error) {
	opts := func(o *session.Options) {
		if cfg.Agent.CollapsibleTools != nil {
			o.MemoryOptions = append(o.MemoryOptions, memory.WithCollapsibleTools(cfg.Agent.CollapsibleTools...))
		}
	}

	switch cfg.Storage.Driver {
	case "memory":
		return session.NewInMemoryStore(opts), nopCloser{}, nil
	case "sqlite":
		s, err := session.NewSQLiteStore(cfg.Storage.Path, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("open chat store: %w", err)
		}
		return s, s, nil
	default:
		return nil, nil, core.NewConfigError("storage.driver", fmt.Sprintf("unknown driver %q", cfg.Storage.Driver))
	}
}

func buildArtifacts(ctx context.Context, cfg config.ArtifactConfig, outputRoot string) (artifact.Store, error) {
	switch cfg.Driver {
	case "disk":
		return artifact.NewDiskStore(outputRoot)
	case "memory":
		return artifact.NewInMemoryStore(), nil
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
		return store, nil
	default:
		return nil, core.NewConfigError("artifacts.driver", fmt.Sprintf("unknown driver %q", cfg.Driver))
	}
}
