package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"go-agent-fleet/internal/bridge"
	"go-agent-fleet/internal/eventbus"
)

var (
	sendConversation string
	sendText         string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one message and wait for the reply",
	Run:   runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendConversation, "conversation", "web_dashboard", "Conversation id")
	sendCmd.Flags().StringVar(&sendText, "text", "", "Message text")
	sendCmd.MarkFlagRequired("text")
}

func runSend(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	bus := eventbus.NewRedisBus(redisOptions(cfg), "fleet-send", newLogger())
	defer bus.Close()

	out, err := bridge.Ask(context.Background(), bus, sendConversation, sendText, bridge.Options{
		Deadline: cfg.Bridge.Deadline,
		Settle:   cfg.Bridge.Settle,
	})
	switch {
	case errors.Is(err, bridge.ErrTimeout):
		fatal("no response before deadline; check that agent and gateway processes are running")
	case err != nil:
		fatal("%v", err)
	}
	fmt.Println(out)
}
