// Command chat is a terminal client for the chat API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/chatclient"
)

var (
	apiURL       string
	inferenceURL string
	token        string
	search       string
	newTitle     string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Talk to the chat API from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", envOr("CHAT_API_URL", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&inferenceURL, "inference", os.Getenv("CHAT_INFERENCE_URL"), "inference endpoint; defaults to <api>/api/chat")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("CHAT_TOKEN"), "bearer token")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List your chats, newest first",
		RunE:  runSessions,
	}
	sessionsCmd.Flags().StringVar(&search, "search", "", "case-insensitive title filter")

	newCmd := &cobra.Command{
		Use:   "new [first message]",
		Short: "Start a chat",
		RunE:  runNew,
	}
	newCmd.Flags().StringVar(&newTitle, "title", "", "chat title")

	root.AddCommand(
		sessionsCmd,
		newCmd,
		&cobra.Command{
			Use:   "history <session-id>",
			Short: "Print a chat's messages, oldest first",
			Args:  cobra.ExactArgs(1),
			RunE:  runHistory,
		},
		&cobra.Command{
			Use:   "send <session-id> <message>",
			Short: "Send one message and stream the reply",
			Args:  cobra.MinimumNArgs(2),
			RunE:  runSend,
		},
		&cobra.Command{
			Use:   "repl [session-id]",
			Short: "Interactive chat",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runREPL,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func client() (*chatclient.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("no token: set CHAT_TOKEN or pass --token")
	}
	var opts []chatclient.ClientOption
	if inferenceURL != "" {
		opts = append(opts, chatclient.WithInferenceURL(inferenceURL))
	}
	return chatclient.NewClient(apiURL, token, opts...), nil
}

func stderrNotifier() chatclient.Notifier {
	return chatclient.NotifierFunc(func(n chatclient.Notice) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Title, n.Description)
	})
}

func runSessions(cmd *cobra.Command, args []string) error {
	api, err := client()
	if err != nil {
		return err
	}
	list := chatclient.NewSessionList(api, stderrNotifier())
	if err := list.Refresh(cmd.Context()); err != nil {
		return err
	}
	list.SetFilter(search)
	printSessions(cmd.OutOrStdout(), list.View())
	return nil
}

func printSessions(w io.Writer, v chatclient.SessionView) {
	if v.Loading {
		fmt.Fprintln(w, "loading...")
		return
	}
	if v.EmptyMessage != "" {
		fmt.Fprintln(w, v.EmptyMessage)
		return
	}
	for _, s := range v.Sessions {
		fmt.Fprintf(w, "%s  %-50s  %s\n", s.ID, s.Title, s.UpdatedAt.Local().Format(time.DateTime))
	}
}

func runNew(cmd *cobra.Command, args []string) error {
	api, err := client()
	if err != nil {
		return err
	}
	s, err := api.CreateSession(cmd.Context(), newTitle, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", s.ID, s.Title)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	api, err := client()
	if err != nil {
		return err
	}
	msgs, err := api.ListMessages(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, m := range msgs {
		printMessage(cmd.OutOrStdout(), m)
	}
	return nil
}

func printMessage(w io.Writer, m chat.Message) {
	who := "you"
	if m.Role != chat.RoleUser {
		who = m.Role
	}
	fmt.Fprintf(w, "%s> %s\n", who, m.Content)
}

func runSend(cmd *cobra.Command, args []string) error {
	conv, err := conversation(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := conv.SwitchSession(cmd.Context(), args[0]); err != nil {
		return err
	}
	return sendAndPrint(cmd.Context(), conv, cmd.OutOrStdout(), strings.Join(args[1:], " "))
}

// conversation builds a Conversation whose observer echoes the reply as it streams.
func conversation(ctx context.Context, w io.Writer) (*chatclient.Conversation, error) {
	api, err := client()
	if err != nil {
		return nil, err
	}
	me, err := api.Me(ctx)
	if err != nil {
		return nil, err
	}
	printed := 0
	return chatclient.NewConversation(api, me,
		chatclient.WithNotifier(stderrNotifier()),
		chatclient.WithObserver(func(s chatclient.State) {
			switch s.Status {
			case chatclient.StatusStreaming:
				if len(s.Streaming) > printed {
					if printed == 0 {
						fmt.Fprint(w, "assistant> ")
					}
					fmt.Fprint(w, s.Streaming[printed:])
					printed = len(s.Streaming)
				}
			case chatclient.StatusIdle:
				if printed > 0 {
					fmt.Fprintln(w)
				}
				printed = 0
			}
		}),
	), nil
}

func sendAndPrint(ctx context.Context, conv *chatclient.Conversation, w io.Writer, text string) error {
	if err := conv.Send(ctx, text); err != nil {
		return err
	}
	h := conv.State().History
	if n := len(h); n == 0 || h[n-1].Role == chat.RoleUser {
		fmt.Fprintln(w, "(no reply)")
	}
	return nil
}
