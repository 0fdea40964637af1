// Package cli wires the fleet's processes and operator commands.
package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"go-agent-fleet/internal/config"
	"go-agent-fleet/internal/roster"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Event-driven agent fleet orchestrator",
	Long:  "fleet runs and manages a team of autonomous agents over a shared Redis event bus.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(respawnCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fleet %s\n", version)
	},
}

func printHeader(title string) {
	fmt.Println(color.CyanString(title))
	fmt.Println("─────────────────────")
}

func fatal(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.RedString("Error: "+fmt.Sprintf(format, args...)))
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	return cfg
}

func redisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newSource(cfg *config.Config) roster.Source {
	if cfg.Gateway.RosterURL != "" {
		return roster.NewHTTPSource(cfg.Gateway.RosterURL, &http.Client{Timeout: 10 * time.Second})
	}
	return &roster.FileSource{
		TeamPath:    cfg.Gateway.TeamPath,
		SignalsPath: cfg.Gateway.SignalsPath,
	}
}
