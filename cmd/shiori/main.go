// Shiori is a conversational identity bot for Matrix.
//
// Usage:
//
//	shiori run [--config shiori.yaml]
//	shiori config            print the effective configuration, secrets masked
//	shiori whoami            load and print the bot identity from the directory
//	shiori version
//
// Configuration is read from the YAML file and overridden by environment
// variables:
//
//	MATRIX_HOMESERVER          - Matrix homeserver URL
//	MATRIX_USER_ID             - bot's Matrix ID (e.g. "@shiori:example.org")
//	MATRIX_ACCESS_TOKEN        - bot's Matrix access token
//	MATRIX_ROOMS               - comma-separated room IDs to join on start
//	SHIORI_DIRECTORY_URL       - identity directory base URL
//	SHIORI_DIRECTORY_TOKEN     - directory API token
//	SHIORI_DIRECTORY_USER_ID   - the bot's user ID in the directory
//	SHIORI_NLU_BACKEND         - "dialogflow" (default) or "openai"
//	SHIORI_DIALOGFLOW_TOKEN    - Dialogflow client access token
//	SHIORI_OPENAI_API_KEY      - OpenAI-compatible API key
//	SHIORI_DATABASE_PATH       - SQLite database path (default "./shiori.db")
//	SHIORI_HEALTH_ADDR         - health server address (default ":8080", "" disables)
//	SHIORI_LOG_LEVEL           - "debug", "info", "warn", "error"
//	SHIORI_LOG_FORMAT          - "text" or "json"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/shiori/common/redact"
	"github.com/bdobrica/shiori/common/version"
	"github.com/bdobrica/shiori/internal/shiori/app"
	"github.com/bdobrica/shiori/internal/shiori/config"
	"github.com/bdobrica/shiori/internal/shiori/observability"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		msg := err.Error()
		if cfg, cerr := config.Load(configPath); cerr == nil {
			msg = redact.String(msg, cfg.Secrets()...)
		}
		fmt.Fprintln(os.Stderr, "Error:", msg)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shiori",
		Short:         "Conversational identity bot for Matrix",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file (default "+config.DefaultPath+" if present)")

	root.AddCommand(runCmd(), configCmd(), whoamiCmd(), versionCmd())
	return root
}

// loadConfig loads the configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	observability.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Matrix and start answering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), version.String())

			shiori, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize Shiori: %w", err)
			}
			defer shiori.Close()

			return shiori.Run(cmd.Context())
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Load the bot identity from the directory and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			holder, err := app.LoadIdentity(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			id := holder.Current()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:        %s\n", id.ID)
			fmt.Fprintf(w, "Name:      %s\n", id.FullName())
			fmt.Fprintf(w, "Tag:       %s\n", id.Handle())
			if id.Org.Slug != "" {
				fmt.Fprintf(w, "Org:       %s\n", id.Org.Slug)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
