package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatapp/internal/chatclient"
)

const replHelp = `commands:
  /sessions [search]   list chats
  /new [title]         start a chat and switch to it
  /switch <id>         open another chat
  /history             reprint the current chat
  /quit                leave
anything else is sent as a message`

func runREPL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	api, err := client()
	if err != nil {
		return err
	}
	conv, err := conversation(ctx, out)
	if err != nil {
		return err
	}
	list := chatclient.NewSessionList(api, stderrNotifier())

	if len(args) == 1 {
		if err := conv.SwitchSession(ctx, args[0]); err != nil {
			return err
		}
		printHistory(conv, out)
	}
	fmt.Fprintln(out, replHelp)

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		verb, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		switch verb {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, replHelp)
		case "/sessions":
			if list.Refresh(ctx) == nil {
				list.SetFilter(rest)
				printSessions(out, list.View())
			}
		case "/new":
			s, err := api.CreateSession(ctx, rest, "")
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			_ = conv.SwitchSession(ctx, s.ID)
			fmt.Fprintf(out, "switched to %s (%s)\n", s.ID, s.Title)
		case "/switch":
			if rest == "" {
				fmt.Fprintln(out, "usage: /switch <id>")
				continue
			}
			if conv.SwitchSession(ctx, rest) == nil {
				printHistory(conv, out)
			}
		case "/history":
			printHistory(conv, out)
		default:
			if err := sendAndPrint(ctx, conv, out, line); err != nil {
				if errors.Is(err, chatclient.ErrNoSession) {
					fmt.Fprintln(out, "no chat selected: use /new or /switch")
				}
			}
		}
	}
}

func printHistory(conv *chatclient.Conversation, out io.Writer) {
	for _, m := range conv.State().History {
		printMessage(out, m)
	}
}
