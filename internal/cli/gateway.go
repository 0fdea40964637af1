package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/gateway"
	"go-agent-fleet/internal/router"
)

var gatewayConversation string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the chat gateway with a console adapter",
	Long: "Reads messages from stdin, routes them onto the bus (mentions, sticky\n" +
		"assignments, /reset) and prints completed action outputs.",
	Run: runGateway,
}

func init() {
	gatewayCmd.Flags().StringVar(&gatewayConversation, "conversation", "console:local", "Conversation id for stdin messages")
}

// consoleAdapter prints agent replies to stdout.
type consoleAdapter struct{}

func (consoleAdapter) Platform() string             { return "console" }
func (consoleAdapter) ConversationIDPrefix() string { return "console:" }

func (consoleAdapter) SendMessage(ctx context.Context, conversationID, text string) error {
	fmt.Printf("%s %s\n", color.GreenString("agent>"), text)
	return nil
}

func runGateway(cmd *cobra.Command, args []string) {
	printHeader("Fleet Gateway")

	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	bus := eventbus.NewRedisBus(redisOptions(cfg), "chat-gateway", logger)
	defer bus.Close()

	r := router.New(redisOptions(cfg), cfg.Router.TTL, logger)
	defer r.Close()

	handler := gateway.NewHandler(bus, r, newSource(cfg), logger)

	go func() {
		if err := handler.DeliverOutcomes(ctx, []gateway.Adapter{consoleAdapter{}}); err != nil && ctx.Err() == nil {
			logger.Error("outcome delivery stopped", "error", err)
		}
	}()

	fmt.Println("Type a message and press enter. Use @Name to route, /reset to clear. Ctrl+C to stop.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		err := handler.HandleIncoming(ctx, gateway.Incoming{
			Platform:       "console",
			UserID:         "console-user",
			ConversationID: gatewayConversation,
			Text:           text,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("route failed: %v", err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
