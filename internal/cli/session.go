package cli

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/roach88/canvaspipe/internal/compiler"
	"github.com/roach88/canvaspipe/internal/config"
	"github.com/roach88/canvaspipe/internal/pipeline"
	"github.com/roach88/canvaspipe/internal/provider"
	"github.com/roach88/canvaspipe/internal/registry"
	"github.com/roach88/canvaspipe/internal/store"
)

// session is everything a pipeline command needs, opened from the
// resolved configuration.
type session struct {
	cfg      config.Config
	reg      *registry.Registry
	store    *store.Store
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	out      *OutputFormatter
}

func (s *session) Close() error {
	return s.store.Close()
}

// resolveConfig applies flags and environment over the config file.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	return config.Resolve(config.Flags{
		ConfigPath: opts.ConfigPath,
		Database:   opts.Database,
		StagesFile: opts.StagesFile,
	}, opts.getenv)
}

// loadRegistry returns the stage table named by the config, or the
// built-in one.
func loadRegistry(cfg config.Config) (*registry.Registry, error) {
	if cfg.StagesFile == "" {
		return registry.Default(), nil
	}
	return compiler.LoadRegistry(cfg.StagesFile)
}

// openSession resolves config, loads the stage table and opens the store.
// Failures are reported through the formatter and returned as ExitErrors.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := opts.formatter(cmd)

	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, out.FailWith(ExitCommandError, ErrCodeConfig, "load config", err)
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, out.FailWith(ExitCommandError, ErrCodeStages, "load stages", err)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, out.FailWith(ExitCommandError, ErrCodeStore, "open database", err)
	}

	p := pipeline.New(reg, st, providersFor(cfg, reg, opts),
		pipeline.WithLogger(logger),
		pipeline.WithApprovalRetry(cfg.Approval.MaxAttempts, cfg.Approval.Backoff),
		pipeline.WithNativeLanguage(cfg.Language()),
		pipeline.WithTranslationMemory(cfg.Translation.MemoryEntries),
		pipeline.WithTranslateTimeout(cfg.Translation.Timeout),
		pipeline.WithRegenerateTimeout(cfg.Generator.Timeout),
	)
	return &session{cfg: cfg, reg: reg, store: st, pipeline: p, logger: logger, out: out}, nil
}

// providersFor builds the content services the config selects.
func providersFor(cfg config.Config, reg *registry.Registry, opts *RootOptions) pipeline.Providers {
	if cfg.Generator.Kind == config.GeneratorHTTP {
		httpOpts := []provider.HTTPOption{
			provider.WithHTTPClient(&http.Client{Timeout: cfg.Generator.Timeout}),
		}
		if cfg.Generator.APIKeyEnv != "" {
			httpOpts = append(httpOpts, provider.WithAPIKey(opts.getenv(cfg.Generator.APIKeyEnv)))
		}
		h := provider.NewHTTP(cfg.Generator.Endpoint, httpOpts...)
		return pipeline.Providers{Generator: h, FieldGenerator: h, Translator: h}
	}
	local := provider.NewLocal(reg, cfg.Generator.Items)
	return pipeline.Providers{Generator: local, FieldGenerator: local, Translator: local}
}
