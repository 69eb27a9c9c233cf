package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/assistant"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/inference"
)

// ChatOptions holds flags for the chat command.
type ChatOptions struct {
	*RootOptions
	Subject      string
	AssistantURL string
	Local        bool
}

// ChatExchange is one message and the reply it got.
type ChatExchange struct {
	Seq     int64  `json:"seq"`
	Message string `json:"message"`
	Reply   string `json:"reply"`
	Status  string `json:"status"`
}

// NewChatCommand creates the chat command.
func NewChatCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChatOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Talk to the first-aid assistant",
		Long: `Send messages to the first-aid assistant, one at a time and in order.

Each argument is one message. Without arguments, every non-blank line of
stdin is a message. With --local the configured inference provider answers
in-process instead of the assistant endpoint.

An unreachable assistant is reported in the transcript and does not fail
the command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			messages := args
			if len(messages) == 0 {
				var err error
				if messages, err = readLines(cmd.InOrStdin()); err != nil {
					return WrapExitError(ExitCommandError, "failed to read messages", err)
				}
			}
			if len(messages) == 0 {
				return NewExitError(ExitCommandError, "no messages given")
			}
			return runChat(cmd.Context(), opts, messages, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "cli-user", "subject ID the assistant keeps history for")
	cmd.Flags().StringVar(&opts.AssistantURL, "assistant-url", "", "assistant base URL (default from config)")
	cmd.Flags().BoolVar(&opts.Local, "local", false, "answer with the configured inference provider")

	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func runChat(ctx context.Context, opts *ChatOptions, messages []string, cmd *cobra.Command) error {
	cfg := opts.settings()
	logger := opts.log()
	formatter := opts.formatter(cmd)

	var replier assistant.Replier
	if opts.Local {
		provider, err := inference.New(ctx, cfg.Inference, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create inference provider", err)
		}
		formatter.VerboseLog("Answering locally with %s", provider.Name())
		replier = assistant.Local{Provider: provider}
	} else {
		baseURL := cfg.Assistant.BaseURL
		if opts.AssistantURL != "" {
			baseURL = opts.AssistantURL
		}
		replier = assistant.NewClient(assistant.Options{
			BaseURL: baseURL,
			Timeout: cfg.Assistant.Timeout,
			Logger:  logger,
		})
	}

	conv := assistant.NewConversation(assistant.ConversationOptions{
		SubjectID: opts.Subject,
		Replier:   replier,
		Timeout:   cfg.Assistant.Timeout,
		Logger:    logger,
	})
	defer conv.Close()

	var (
		exchanges []ChatExchange
		notices   []string
	)
	for _, msg := range messages {
		done, err := conv.Send(msg)
		if err != nil {
			if errors.Is(err, assistant.ErrEmptyMessage) {
				continue
			}
			return WrapExitError(ExitCommandError, "failed to send message", err)
		}
		var turn assistant.Turn
		select {
		case turn = <-done:
		case <-ctx.Done():
			return WrapExitError(ExitCommandError, "chat interrupted", ctx.Err())
		}
		if turn.Status == assistant.TurnFailed && len(notices) == 0 {
			notices = appendNotice(notices, fault.Notice(turn.Err))
		}
		exchanges = append(exchanges, ChatExchange{
			Seq:     turn.Seq,
			Message: turn.Message,
			Reply:   turn.Reply,
			Status:  string(turn.Status),
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(exchanges, notices...)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Assistant: %s", assistant.Greeting)
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "\nYou:       %s\nAssistant: %s", ex.Message, ex.Reply)
	}
	return formatter.Success(b.String(), notices...)
}
