package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/scheduler"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the tick loop and signal watcher",
	Run:   runScheduler,
}

func runScheduler(cmd *cobra.Command, args []string) {
	printHeader("Fleet Scheduler")

	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	bus := eventbus.NewRedisBus(redisOptions(cfg), "scheduler", logger)
	defer bus.Close()

	s := scheduler.New("scheduler", scheduler.Config{
		TickEnabled:     cfg.Scheduler.TickEnabled,
		TickInterval:    cfg.Scheduler.TickInterval,
		InitialDelay:    cfg.Scheduler.InitialDelay,
		WatcherEnabled:  cfg.Scheduler.WatcherEnabled,
		WatcherInterval: cfg.Scheduler.WatcherInterval,
	}, bus, newSource(cfg), logger)

	if err := s.Start(ctx); err != nil {
		fatal("start scheduler: %v", err)
	}
	fmt.Println("Scheduler running. Ctrl+C to stop.")

	<-ctx.Done()
	s.Stop(context.Background())
}
