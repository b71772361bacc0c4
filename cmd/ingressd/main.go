package main

import (
	"errors"

	"github.com/danmuck/ingressd/internal/config"
	"github.com/danmuck/ingressd/internal/ingress"
	"github.com/danmuck/ingressd/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	observability.InitLogger("ingressd")

	var settings config.Once
	path := config.ConfigPath()
	loaded, err := config.LoadSettingsOrDefault(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config file not usable, using defaults")
	} else {
		log.Info().Str("path", path).Msg("loaded config")
	}
	if err := settings.Set(config.ApplyEnv(loaded)); err != nil {
		log.Warn().Err(err).Msg("config already initialized, keeping first value")
	}

	resolved, err := settings.Get()
	if err != nil {
		log.Fatal().Err(err).Msg("config unavailable at startup")
	}

	cfg := ingress.DefaultServiceConfig()
	cfg.ListenAddr = config.BindAddr()
	svc := ingress.NewService(cfg, resolved)
	if err := svc.Run(); err != nil {
		if errors.Is(err, ingress.ErrBind) {
			log.Fatal().Err(err).Str("addr", cfg.ListenAddr).Msg("failed to bind listener")
		}
		log.Fatal().Err(err).Msg("ingress stopped")
	}
	log.Info().Msg("ingress shut down")
}
