package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/deskbridge/internal/adapters/config"
	"github.com/bnema/deskbridge/internal/adapters/probe/cdp"
	statusadapter "github.com/bnema/deskbridge/internal/adapters/render/status"
	tomlrepo "github.com/bnema/deskbridge/internal/adapters/repo/toml"
	"github.com/bnema/deskbridge/internal/adapters/secrets"
	"github.com/bnema/deskbridge/internal/application"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

type app struct {
	cfg config.Config

	surface  *cdp.Surface
	anchors  *application.AnchorRegistry
	contexts *application.ContextRegistry
	engine   *application.ExtractionEngine
	bridge   *application.BridgeService
	messages *application.MessageService
	health   *application.HealthMonitor

	contextStore ports.ContextStore
	secretStore  ports.SecretStore

	statusRenderer func(statusadapter.Snapshot, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
}

func wireApp() (*app, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetVerbose(cfg.Verbose)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	contextStore, err := tomlrepo.NewRepository(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire context store: %w", err)
	}

	secretStore := secrets.NewStore(filepath.Join(homeDir, ".deskbridge", "secrets"))

	clock := ports.SystemClock{}

	surface := cdp.New(cdp.Config{
		DevtoolsURL:    cfg.DevtoolsURL,
		PageURLPattern: cfg.PageURLPattern,
		ProbeTimeout:   cfg.ProbeTimeout,
	})

	anchors := application.NewAnchorRegistry(clock, application.AnchorRegistryConfig{
		SweepInterval: cfg.SweepInterval,
		MaxAge:        cfg.AnchorMaxAge,
	})
	contexts := application.NewContextRegistry(clock, application.ContextRegistryConfig{
		SweepInterval: cfg.SweepInterval,
		MaxAge:        cfg.ContextMaxAge,
		MaxContexts:   cfg.MaxContexts,
	})

	engine := application.NewExtractionEngine(surface, clock, application.EngineConfig{
		Retries:        cfg.ProbeRetries,
		ProbeTimeout:   cfg.ProbeTimeout,
		NoiseThreshold: cfg.NoiseThreshold,
	})

	bridge := application.NewBridgeService(anchors, contexts, engine, surface, clock, application.BridgeConfig{
		Timeout:       cfg.ResponseTimeout,
		PollInterval:  cfg.PollInterval,
		StartTimeout:  cfg.StartTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
		Multiplex:     cfg.Multiplex,
	})

	messages := application.NewMessageService(bridge, contexts, clock, cfg.Mattermost.MentionPatterns)
	health := application.NewHealthMonitor(engine, clock, 0)

	return &app{
		cfg:            cfg,
		surface:        surface,
		anchors:        anchors,
		contexts:       contexts,
		engine:         engine,
		bridge:         bridge,
		messages:       messages,
		health:         health,
		contextStore:   contextStore,
		secretStore:    secretStore,
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}, nil
}
