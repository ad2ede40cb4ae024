package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"chatrelay/internal/adapter/store"
	"chatrelay/internal/client"
	"chatrelay/internal/domain"
	"chatrelay/internal/infra/config"
	"chatrelay/internal/infra/logger"
)

var (
	chatServerURL string
	chatModel     string
	chatConvID    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat against a running relay",
	Long: `Start a conversational session against a chatrelay server.
Responses stream token by token; Ctrl+C during a response stops it and
keeps the partial text. Type 'exit' to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatServerURL, "server", "http://127.0.0.1:8089", "relay server base URL")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model id (empty uses the server default)")
	chatCmd.Flags().StringVar(&chatConvID, "conversation", "", "conversation id to resume (empty starts fresh)")
}

func runChat(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(config.LoggerConfig{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	messages, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open message store: %w", err)
	}
	defer messages.Close()

	convID := chatConvID
	if convID == "" {
		convID = ulid.Make().String()
	}

	history, err := loadHistory(ctx, messages, convID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	tracker := client.NewTracker(messages, log)
	relay := client.New(client.Options{BaseURL: chatServerURL, Logger: log})

	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Fprintln(os.Stderr)
	cyan.Fprintln(os.Stderr, "  chatrelay")
	dim.Fprintf(os.Stderr, "  conversation %s (type 'exit' to quit)\n\n", convID)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		green.Fprint(os.Stderr, "  you → ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			dim.Fprintln(os.Stderr, "\n  bye")
			break
		}

		if err := saveUserMessage(ctx, messages, convID, input); err != nil {
			log.Warn("save user message failed", "error", err)
		}

		reply := streamTurn(ctx, relay, tracker, convID, history, input, cyan, red)
		history = append(history, client.HistoryEntry{Sender: "user", Text: input})
		if reply != "" {
			history = append(history, client.HistoryEntry{Sender: "assistant", Text: reply})
		}
	}

	return nil
}

// streamTurn runs one request/response exchange and returns the (possibly
// partial) assistant text. Ctrl+C while streaming cancels just this turn;
// partial text is kept and persisted.
func streamTurn(ctx context.Context, relay *client.Client, tracker *client.Tracker, convID string, history []client.HistoryEntry, input string, cyan, red *color.Color) string {
	turnCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT)
	defer stopSignals()

	msgID := ulid.Make().String()
	if err := tracker.Start(msgID, convID, chatModel); err != nil {
		red.Fprintf(os.Stderr, "  error: %v\n\n", err)
		return ""
	}

	sp := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = "  waiting for first token..."
	sp.Start()

	firstToken := true
	var reply string

	stream, err := relay.Stream(turnCtx, client.ChatParams{
		Message: input,
		History: history,
		Model:   chatModel,
	}, client.Callbacks{
		OnToken: func(content string) {
			if firstToken {
				sp.Stop()
				cyan.Fprint(os.Stderr, "  relay → ")
				firstToken = false
			}
			fmt.Fprint(os.Stderr, content)
			tracker.AppendToken(content)
		},
		OnComplete: func(model string, totalTokens int) {
			if firstToken {
				sp.Stop()
			}
			fmt.Fprintln(os.Stderr)
			color.New(color.FgHiBlack).Fprintf(os.Stderr, "  (%s, %d tokens)\n\n", model, totalTokens)
			if msg, err := tracker.Complete(context.Background(), model); err == nil {
				reply = msg.Text
			}
		},
		OnError: func(code domain.ErrorCode, message string) {
			if firstToken {
				sp.Stop()
			}
			red.Fprintf(os.Stderr, "\n  error [%s]: %s\n\n", code, message)
			if msg, err := tracker.Interrupt(context.Background(), message); err == nil {
				reply = msg.Text
			}
		},
	})
	if err != nil {
		sp.Stop()
		red.Fprintf(os.Stderr, "  error: %v\n\n", err)
		tracker.Interrupt(context.Background(), err.Error())
		return ""
	}

	select {
	case <-stream.Done():
	case <-turnCtx.Done():
		stream.Cancel()
		<-stream.Done()
	}

	return reply
}

func loadHistory(ctx context.Context, messages domain.MessageStore, convID string) ([]client.HistoryEntry, error) {
	prior, err := messages.History(ctx, convID, 50)
	if err != nil {
		return nil, err
	}
	history := make([]client.HistoryEntry, 0, len(prior))
	for _, m := range prior {
		sender := "user"
		if m.Role == domain.RoleAssistant {
			sender = "assistant"
		}
		history = append(history, client.HistoryEntry{Sender: sender, Text: m.Content})
	}
	return history, nil
}

func saveUserMessage(ctx context.Context, messages domain.MessageStore, convID, text string) error {
	return messages.SaveMessage(ctx, domain.StreamingMessage{
		ID:             ulid.Make().String(),
		ConversationID: convID,
		Sender:         domain.RoleUser,
		Text:           text,
		Timestamp:      time.Now(),
	})
}
