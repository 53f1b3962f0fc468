package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "briefing.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
	})

	v.SetDefault("pulse.workers", 2)
	v.SetDefault("pulse.ticker_interval_seconds", 30)
	v.SetDefault("pulse.execution_retention_days", 90)

	v.SetDefault("warehouse.driver", "sqlite3")
	v.SetDefault("warehouse.dsn", "warehouse.db")
	v.SetDefault("warehouse.query_timeout_seconds", 30)
	v.SetDefault("warehouse.max_rows", 1000)
	v.SetDefault("warehouse.queries_per_second", 5.0)

	v.SetDefault("mail.transport", MailTransportLog) // nothing leaves the box until smtp is configured
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "reports@localhost")
	v.SetDefault("mail.max_per_minute", 30)
	v.SetDefault("mail.send_timeout_seconds", 30)

	v.SetDefault("refresh.max_concurrency", 4)

	v.SetDefault("delivery.dashboard_base_url", "http://localhost:8787")
	v.SetDefault("delivery.default_timezone", "UTC")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "BRIEFING_DATABASE_PATH")
	v.BindEnv("warehouse.dsn", "BRIEFING_WAREHOUSE_DSN")
	v.BindEnv("mail.username", "BRIEFING_MAIL_USERNAME")
	v.BindEnv("mail.password", "BRIEFING_MAIL_PASSWORD")
}
