package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

const replHelp = `Commands:
  /sources   show the selected sources and cost per message
  /reset     clear the conversation
  /quit      leave
Anything else is sent as a message.`

func newChatCmd(opts *options) *cobra.Command {
	var dataSources []string
	var chatSource string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat with a chat source. Every message is first
searched against the data sources, and the passages found are given to the
chat source as context.`,
		Example: `  routerchat chat -c TinyChat -d DocsSearch
  routerchat chat -c TinyChat -d DocsSearch,PapersSearch --parallel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := chat.NewOrchestrator(opts.client, opts.client, chat.Options{
				Logger:         opts.logger,
				ParallelSearch: opts.parallel,
			})

			s := models.NewSession("cli")
			if err := orch.LoadRouters(cmd.Context(), s); err != nil {
				return err
			}
			if err := orch.SetSources(s, dataSources, chatSource); err != nil {
				return err
			}
			return runREPL(cmd.Context(), orch, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVarP(&dataSources, "data", "d", nil, "data sources to search (repeatable)")
	cmd.Flags().StringVarP(&chatSource, "chat", "c", "", "chat source")
	cmd.MarkFlagRequired("chat")
	return cmd
}

// runREPL reads lines from in until EOF, /quit or ctx is done.
func runREPL(ctx context.Context, orch *chat.Orchestrator, s *models.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, chat.Placeholder)
	printSources(out, chat.Render(s))
	fmt.Fprintln(out, dimStyle("Type /help for commands."))
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, userStyle("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, replHelp)
			continue
		case "/sources":
			printSources(out, chat.Render(s))
			continue
		case "/reset":
			orch.Reset(s)
			fmt.Fprintln(out, dimStyle("Conversation cleared."))
			continue
		}

		turn, err := orch.Send(ctx, s, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, errorStyle("Error:"), s.Error)
			continue
		}

		for _, name := range turn.FailedSources {
			fmt.Fprintln(out, dimStyle(fmt.Sprintf("(search on %s failed; answered without it)", name)))
		}
		v := chat.Render(s)
		printReply(out, v.Messages[len(v.Messages)-1])
	}
}
