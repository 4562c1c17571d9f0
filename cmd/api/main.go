package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finstory/pkg/api"
	"finstory/pkg/core/agent"
	"finstory/pkg/core/config"
	"finstory/pkg/core/llm"
	"finstory/pkg/core/logger"
	"finstory/pkg/core/pipeline"
	"finstory/pkg/core/prompt"
	"finstory/pkg/core/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("FINSTORY_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New(logger.Config{Level: "info", Pretty: true})
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.LoggerConfig())
	log.Info().Str("config", *configPath).Msg("Starting finstory API")

	prompts := prompt.NewDefaultRegistry()
	if _, err := prompt.LoadFromDirectory(prompts, cfg.Insight.PromptDir, log); err != nil {
		log.Warn().Err(err).Msg("Failed to load prompt overrides, using built-in prompts")
	}

	agents := agent.NewManager(cfg.LLM, log)
	var provider llm.Provider
	if cfg.Insight.Enabled {
		provider = agents.For(cfg.Insight.AgentType)
	}
	if provider == nil {
		log.Info().Msg("No external provider, narratives use the built-in template")
	}

	orch := pipeline.FromConfig(cfg, provider, prompts, log)
	var runner pipeline.Runner = orch

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	cache, closeCache, err := store.Open(ctx, cfg.Cache)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open result cache")
	}
	defer closeCache()
	if cache != nil {
		runner = store.NewCachedRunner(orch, cache, cfg.Cache.TTL, log)
		log.Info().Dur("ttl", cfg.Cache.TTL).Msg("Result cache enabled")
	}

	srv := api.New(api.Config{
		App:    cfg,
		Runner: runner,
		Agents: agents,
		Health: orch.InsightHealth(),
		Log:    log,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
