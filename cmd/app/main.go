package main

import (
	"vfast/config"
	"vfast/di"
	"vfast/helper"
	"vfast/shared/logger"

	"github.com/rs/zerolog/log"
)

// @title VFast API
// @version 1.0
// @description Hostel booking workflow: requests, approvals, room allocation and guest check-in.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey APIKey
// @in header
// @name X-API-Key
func main() {
	cfg := config.Get()

	logger.InitLogger()

	logger.SetLogLevel(cfg)

	if cfg.DB.Postgres.AutoMigrate {
		if err := helper.Up(cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	http := di.InitializeService()
	http.Serve()
}
