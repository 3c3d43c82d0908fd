package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/forumpulse/internal/config"
	"github.com/forumpulse/internal/environment"
	"github.com/spf13/cobra"
)

// CommandContext provides shared command resources.
type CommandContext struct {
	Env      *environment.Environment
	Config   config.AppConfig
	JSONMode bool
}

// Close releases the environment.
func (c *CommandContext) Close() {
	if c.Env != nil {
		_ = c.Env.Close()
	}
}

// loadConfig resolves configuration from --config or the working directory, then applies --db.
func loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	var cfg config.AppConfig
	if strings.TrimSpace(path) != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return config.AppConfig{}, err
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	if dbPath, _ := cmd.Flags().GetString("db"); strings.TrimSpace(dbPath) != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

// GetContext loads configuration and wires the storage environment for a command.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	jsonMode, _ := cmd.Flags().GetBool("json")

	env, err := environment.New(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open environment: %w", err)
	}
	return &CommandContext{Env: env, Config: cfg, JSONMode: jsonMode}, nil
}

func writeJSON(out io.Writer, value interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
