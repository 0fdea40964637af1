package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/scheduler"
)

var (
	triggerAgent   string
	triggerAll     bool
	triggerSignals string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Wake agents manually",
	Run:   runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerAgent, "agent", "", "Wake a single agent by id")
	triggerCmd.Flags().BoolVar(&triggerAll, "all", false, "Wake every qualifying team member")
	triggerCmd.Flags().StringVar(&triggerSignals, "signals", "", "Signals text to pass (default: current snapshot)")
	triggerCmd.MarkFlagsOneRequired("agent", "all")
	triggerCmd.MarkFlagsMutuallyExclusive("agent", "all")
}

func runTrigger(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	bus := eventbus.NewRedisBus(redisOptions(cfg), "fleet-trigger", newLogger())
	defer bus.Close()

	s := scheduler.New("fleet-trigger", scheduler.Config{}, bus, newSource(cfg), newLogger())

	if triggerAll {
		n, err := s.WakeAll(ctx, triggerSignals)
		if err != nil {
			fatal("wake all: %v", err)
		}
		fmt.Printf("Woke %d agent(s).\n", n)
		return
	}
	if err := s.Wake(ctx, triggerAgent, triggerSignals); err != nil {
		fatal("wake %s: %v", triggerAgent, err)
	}
	fmt.Printf("Woke %s.\n", triggerAgent)
}
