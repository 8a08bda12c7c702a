// Command cnosdb-query runs the CnosDB SQL query server, or executes SQL
// against a local catalog from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/g302ge/cnosdb/internal/config"
	"github.com/g302ge/cnosdb/internal/logging"
)

var (
	configFile string
	envFile    string
	jsonOutput bool
)

var errorLabel = color.New(color.FgRed)

var rootCmd = &cobra.Command{
	Use:   "cnosdb-query [command] [flags]",
	Short: "CnosDB query server",
	Long: `cnosdb-query serves SQL over HTTP and executes SQL from the command line.

Examples:
  # Start the server with a configuration file
  cnosdb-query serve --config cnosdb.toml

  # Run statements against the local catalog
  cnosdb-query exec --sql "CREATE DATABASE db1; SHOW DATABASES"`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML, JSON or TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before CNOSDB_* variables are read")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newExecCmd())
}

// loadConfig reads the configuration file, if any, applies environment
// overrides and installs the logger.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load(envFile) // a missing .env is fine

	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return cfg, nil
}

func printJSON(data interface{}) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			printJSON(map[string]string{"error": err.Error()})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
