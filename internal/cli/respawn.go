package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"go-agent-fleet/internal/procs"
	"go-agent-fleet/internal/roster"
	"go-agent-fleet/internal/state"
)

var respawnCmd = &cobra.Command{
	Use:   "respawn",
	Short: "Reconcile agent processes with the team roster",
	Long: "Spawns a fresh process for every active team member and kills\n" +
		"processes belonging to paused members.",
	Run: runRespawn,
}

func runRespawn(cmd *cobra.Command, args []string) {
	printHeader("Fleet Respawn")

	cfg := loadConfig()
	ctx := context.Background()
	logger := newLogger()

	if cfg.Procs.AgentCommand == "" {
		fatal("FLEET_AGENT_COMMAND is not set")
	}

	team, err := newSource(cfg).Team(ctx)
	if err != nil {
		fatal("fetch team: %v", err)
	}

	store := state.NewRedisStore(redisOptions(cfg), logger)
	defer store.Close()

	manager := procs.NewManager(store, procs.Config{
		AgentCommand: cfg.Procs.AgentCommand,
		AgentArgs:    cfg.Procs.AgentArgs,
		LogDir:       cfg.Procs.LogDir,
		RunDir:       cfg.Procs.RunDir,
	}, logger)

	spawned, err := manager.Reconcile(ctx, team, func(m roster.Member) string {
		return m.Role
	})
	if err != nil {
		fatal("reconcile: %v", err)
	}
	fmt.Printf("Respawned %d agent(s) for a team of %d.\n", spawned, len(team))
}
