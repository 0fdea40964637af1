package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"go-agent-fleet/internal/metrics"
	"go-agent-fleet/internal/procs"
	"go-agent-fleet/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent processes and action counters",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	printHeader("Fleet Status")

	cfg := loadConfig()
	ctx := context.Background()
	logger := newLogger()

	store := state.NewRedisStore(redisOptions(cfg), logger)
	defer store.Close()

	collector := metrics.NewRedisCollector(redisOptions(cfg))
	defer collector.Close()

	manager := procs.NewManager(store, procs.Config{
		AgentCommand: cfg.Procs.AgentCommand,
		AgentArgs:    cfg.Procs.AgentArgs,
		LogDir:       cfg.Procs.LogDir,
		RunDir:       cfg.Procs.RunDir,
	}, logger)

	processes, err := manager.List(ctx)
	if err != nil {
		fatal("list processes: %v", err)
	}
	if len(processes) == 0 {
		fmt.Println("No agent processes tracked.")
		return
	}

	ids := make([]string, 0, len(processes))
	for id := range processes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("%-16s %-8s %-8s %-12s %-8s %s\n", "AGENT", "PID", "STATE", "UPTIME", "ACTIONS", "LAST ACTION")
	for _, id := range ids {
		info := processes[id]
		stateStr := color.RedString("down")
		uptime := "-"
		if info.Online {
			stateStr = color.GreenString("up")
			uptime = info.Uptime.Round(time.Second).String()
		}
		actions, _ := collector.Actions(ctx, id)
		last, _ := collector.LastAction(ctx, id)
		if last == "" {
			last = "-"
		}
		fmt.Printf("%-16s %-8d %-8s %-12s %-8d %s\n", id, info.PID, stateStr, uptime, actions, last)
	}
}
