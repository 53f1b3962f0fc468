package am

import (
	"net/mail"
	"time"

	"github.com/teranos/briefing/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	if c.Pulse.Workers < 1 {
		return errors.Newf("pulse.workers must be >= 1, got %d", c.Pulse.Workers)
	}
	// 0 = no periodic ticking
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.Newf("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.ExecutionRetentionDays < 0 {
		return errors.Newf("pulse.execution_retention_days must be >= 0, got %d", c.Pulse.ExecutionRetentionDays)
	}

	switch c.Warehouse.Driver {
	case "sqlite3", "postgres":
	default:
		return errors.WithHint(
			errors.Newf("warehouse.driver %q is not supported", c.Warehouse.Driver),
			"use sqlite3 or postgres")
	}
	if c.Warehouse.QueryTimeoutSeconds <= 0 {
		return errors.Newf("warehouse.query_timeout_seconds must be > 0, got %d", c.Warehouse.QueryTimeoutSeconds)
	}
	if c.Warehouse.MaxRows <= 0 {
		return errors.Newf("warehouse.max_rows must be > 0, got %d", c.Warehouse.MaxRows)
	}
	if c.Warehouse.QueriesPerSecond < 0 {
		return errors.Newf("warehouse.queries_per_second must be >= 0, got %f", c.Warehouse.QueriesPerSecond)
	}

	switch c.Mail.Transport {
	case MailTransportLog:
	case MailTransportSMTP:
		if c.Mail.Host == "" {
			return errors.New("mail.host cannot be empty when mail.transport is smtp")
		}
		if c.Mail.Port <= 0 {
			return errors.Newf("mail.port must be > 0, got %d", c.Mail.Port)
		}
	default:
		return errors.WithHint(
			errors.Newf("mail.transport %q is not supported", c.Mail.Transport),
			"use smtp or log")
	}
	if _, err := mail.ParseAddress(c.Mail.From); err != nil {
		return errors.Wrapf(err, "mail.from %q is not a valid address", c.Mail.From)
	}
	if c.Mail.MaxPerMinute < 0 {
		return errors.Newf("mail.max_per_minute must be >= 0, got %d", c.Mail.MaxPerMinute)
	}

	if c.Refresh.MaxConcurrency < 1 {
		return errors.Newf("refresh.max_concurrency must be >= 1, got %d", c.Refresh.MaxConcurrency)
	}

	if _, err := time.LoadLocation(c.Delivery.DefaultTimezone); err != nil {
		return errors.Wrapf(err, "delivery.default_timezone %q is not a valid IANA zone", c.Delivery.DefaultTimezone)
	}

	return nil
}
