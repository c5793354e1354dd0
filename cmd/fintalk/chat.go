package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fintalk/fintalk/internal/cli"
	"github.com/fintalk/fintalk/internal/extract"
	"github.com/fintalk/fintalk/internal/gateway"
	"github.com/fintalk/fintalk/internal/learning"
	"github.com/fintalk/fintalk/internal/model"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation loop",
		Long: `Start a chat session. Type messages the way you would text a friend:

  spent 50 on lunch
  received 3000 salary
  how much did I spend this month?

Ctrl+D or "quit" ends the session.`,
		RunE: runChat,
	}

	cmd.Flags().String("user", "local", "user identity for the session")
	cmd.Flags().String("timezone", "", "IANA timezone for date resolution (default: system)")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	userID, _ := cmd.Flags().GetString("user")
	timezone, _ := cmd.Flags().GetString("timezone")
	if timezone == "" {
		timezone = viper.GetString("timezone")
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	cache, err := initCache(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = cache.Close() }()

	client, err := initLLM()
	if err != nil {
		return fmt.Errorf("failed to configure llm client: %w", err)
	}

	patterns := learning.NewStore(store, nil)
	extractor := extract.NewExtractor(client, patterns, store, nil)
	classifier := gateway.NewClassifier(client, nil)
	orchestrator := gateway.NewOrchestrator(classifier, extractor, patterns, store, cache, nil)

	fmt.Println(cli.TitleStyle.Render("fintalk"))
	fmt.Println(cli.SubtleStyle.Render("Tell me about your money. \"quit\" to exit."))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(cli.PromptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "quit" || message == "exit" {
			break
		}

		response, err := orchestrator.Process(ctx, &model.ConversationContext{
			Timestamp:    time.Now(),
			UserID:       userID,
			Conversation: userID,
			Message:      message,
			Channel:      model.ChannelText,
			Timezone:     timezone,
		})
		if err != nil {
			fmt.Println(cli.ErrorStyle.Render("Something went wrong: " + err.Error()))
			continue
		}

		fmt.Println(cli.AssistantStyle.Render(response.Message))
	}

	fmt.Println(cli.SubtleStyle.Render("Bye!"))
	return scanner.Err()
}
