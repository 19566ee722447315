package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("AgentHub", GetVersion())

	logger.Info().
		Str("version", GetVersion()).
		Str("host", config.Server.Host).
		Int("port", config.Server.Port).
		Str("storage", config.Storage.Badger.Path).
		Bool("scheduler", config.Scheduler.Enabled).
		Str("schedule", config.Scheduler.Schedule).
		Msg("Configuration loaded")
}
