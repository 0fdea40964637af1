package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"go-agent-fleet/internal/config"
	"go-agent-fleet/internal/dispatch"
	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/intent"
	"go-agent-fleet/internal/metrics"
	"go-agent-fleet/internal/roster"
)

var (
	agentID        string
	agentIsDefault bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the dispatcher loop for one team member",
	Run:   runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentID, "id", "", "Team member id to run as")
	agentCmd.Flags().BoolVar(&agentIsDefault, "default", false, "Also handle messages with no target agent")
	agentCmd.MarkFlagRequired("id")
}

func runAgent(cmd *cobra.Command, args []string) {
	printHeader("Fleet Agent")

	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := newSource(cfg)
	team, err := source.Team(ctx)
	if err != nil {
		fatal("fetch team: %v", err)
	}
	member, ok := findMember(team, agentID)
	if !ok {
		fatal("no team member with id %q", agentID)
	}

	logger := newLogger()
	bus := eventbus.NewRedisBus(redisOptions(cfg), member.ID, logger)
	defer bus.Close()

	collector := metrics.NewRedisCollector(redisOptions(cfg))
	defer collector.Close()

	classifier := newClassifier(cfg)

	opts := []dispatch.Option{}
	if agentIsDefault {
		opts = append(opts, dispatch.AsDefaultAgent())
	}
	d := dispatch.New(member, bus, classifier, collector, logger, opts...)

	if err := d.Start(ctx); err != nil {
		fatal("start dispatcher: %v", err)
	}
	fmt.Printf("Agent %s (%s) listening. Ctrl+C to stop.\n", member.DisplayName, member.ID)

	<-ctx.Done()
	d.Stop(context.Background())
}

func findMember(team []roster.Member, id string) (roster.Member, bool) {
	for _, m := range team {
		if m.ID == id {
			return m, true
		}
	}
	return roster.Member{}, false
}

func newClassifier(cfg *config.Config) intent.Classifier {
	clientOpts := []option.RequestOption{}
	if cfg.Model.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.Model.APIKey))
	}
	if cfg.Model.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.Model.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return intent.NewOpenAIClassifier(&client, func(o *intent.Options) {
		if cfg.Model.Name != "" {
			o.Model = cfg.Model.Name
		}
		if cfg.Model.Temperature > 0 {
			o.Temperature = cfg.Model.Temperature
		}
		if cfg.Model.MaxTokens > 0 {
			o.MaxTokens = int64(cfg.Model.MaxTokens)
		}
	})
}
