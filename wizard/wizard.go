// Package wizard provides an interactive setup wizard for the hub
// config file.
package wizard

import (
	"fmt"
	"os"
	"strings"

	"github.com/agent-hud/hub/config"
	"github.com/agent-hud/hub/pkg/prompt"
)

// Wizard drives interactive hub configuration.
type Wizard struct {
	p *prompt.Prompter
}

func New(p *prompt.Prompter) *Wizard {
	return &Wizard{p: p}
}

// Run asks for each setting and writes the config file.
func (w *Wizard) Run(outputPath string) error {
	_, _ = fmt.Fprintln(w.p.Out)
	_, _ = fmt.Fprintln(w.p.Out, "  Agent HUD — Configuration Wizard")
	_, _ = fmt.Fprintln(w.p.Out, strings.Repeat("─", 38))
	_, _ = fmt.Fprintln(w.p.Out)

	cfg := config.Default()

	_, _ = fmt.Fprintln(w.p.Out, "Server")
	addr := w.p.Ask("  Listen address (empty = scan ports 8080-8199)", "")
	cfg.Server.Addr = addr
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Storage")
	driver := w.p.Choose("  Database driver", []string{"sqlite", "postgres"}, 0)
	cfg.Storage.Driver = driver
	switch driver {
	case "sqlite":
		cfg.Storage.DSN = w.p.Ask("  SQLite database path", "agent-hud.db")
	case "postgres":
		// DSNs usually embed credentials; read without echo.
		cfg.Storage.DSN = w.p.AskSecret("  PostgreSQL DSN")
	}
	cfg.Storage.RetentionDays = w.p.AskInt("  History retention (days)", cfg.Storage.RetentionDays)
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Logging")
	cfg.Logging.Format = w.p.Choose("  Log format", []string{"text", "json"}, 0)
	_, _ = fmt.Fprintln(w.p.Out)

	if outputPath == "" {
		outputPath = w.p.Ask("Config file output path", "./agent-hud.json")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(outputPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	_, _ = fmt.Fprintf(w.p.Out, "\n  Config written to %s\n", outputPath)
	_, _ = fmt.Fprintln(w.p.Out)
	_, _ = fmt.Fprintln(w.p.Out, "  Next steps:")
	_, _ = fmt.Fprintf(w.p.Out, "    agent-hud run %s\n\n", outputPath)
	return nil
}

// RunDefaults generates a config non-interactively from environment
// variables. Used by container entrypoints.
func (w *Wizard) RunDefaults(outputPath string) error {
	cfg := config.Default()

	cfg.Server.Addr = os.Getenv("AGENT_HUD_ADDR")
	cfg.Storage.Driver = envOr("AGENT_HUD_STORAGE_DRIVER", "sqlite")
	switch cfg.Storage.Driver {
	case "sqlite":
		cfg.Storage.DSN = envOr("AGENT_HUD_STORAGE_DSN", "/var/lib/agent-hud/agent-hud.db")
	case "postgres":
		cfg.Storage.DSN = os.Getenv("AGENT_HUD_STORAGE_DSN")
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("AGENT_HUD_STORAGE_DSN is required when using postgres driver")
		}
	}
	cfg.Logging.Format = envOr("AGENT_HUD_LOG_FORMAT", "json")

	if outputPath == "" {
		outputPath = "./agent-hud.json"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(outputPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	_, _ = fmt.Fprintf(w.p.Out, "Config generated at %s\n", outputPath)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
