// Package sym defines canonical symbols for briefing segments and system markers.
// These symbols are stable across CLI output, log fields, and the HTTP API.
package sym

// Primary segments, one per CLI command.
const (
	AM    = "≡" // am: configuration and system settings
	Job   = "✉" // jobs: scheduled report deliveries
	Cron  = "◷" // cron: schedule expressions
	DB    = "⊔" // db: database/storage layer
	Serve = "⌁" // serve: HTTP API and ticker
)

// System infrastructure symbols, used as log fields.
const (
	Pulse     = "꩜" // ticker and execution tracking
	PulseOpen = "✿" // graceful startup
	Refresh   = "⟳" // query refresh of data-bound elements
	Mail      = "➤" // outbound mail transport
	Warehouse = "⛁" // analytic warehouse connector
)

// PaletteOrder defines the canonical ordering for CLI help listings.
var PaletteOrder = []string{Job, Cron, AM, DB, Serve}

// SymbolToCommand maps glyph strings to their text command equivalents.
var SymbolToCommand = map[string]string{
	AM:    "am",
	Job:   "jobs",
	Cron:  "cron",
	DB:    "db",
	Serve: "serve",
}

// CommandToSymbol maps text commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"am":    AM,
	"jobs":  Job,
	"cron":  Cron,
	"db":    DB,
	"serve": Serve,
}

// CommandDescriptions provides human-readable explanations for help output.
var CommandDescriptions = map[string]string{
	"am":    "Configuration — System settings and state",
	"jobs":  "Jobs — Scheduled report deliveries",
	"cron":  "Cron — Build and check schedule expressions",
	"db":    "Database — Migrations and statistics",
	"serve": "Serve — HTTP API with the delivery ticker",
}
