// Command routerchat chats with remote routers from a terminal: pick a chat
// source, optionally add data sources to search, and ask questions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/OpenMined/network-ensemble-extras/clients/go/syftrpc"
)

// options are the persistent flags shared by every command.
type options struct {
	directory string
	model     string
	verbose   bool
	parallel  bool
	noColor   bool

	logger zerolog.Logger
	client *syftrpc.Client
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "routerchat",
		Short:         "Chat with remote search and chat routers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if opts.verbose {
				level = zerolog.DebugLevel
			}
			opts.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
				Level(level).
				With().
				Timestamp().
				Logger()

			opts.client = syftrpc.NewClient(opts.directory)
			opts.client.Model = opts.model
			opts.client.Logger = opts.logger
			setColor(!opts.noColor)
			return nil
		},
	}

	defaultDirectory := os.Getenv("DIRECTORY_URL")
	if defaultDirectory == "" {
		defaultDirectory = "http://localhost:8080"
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.directory, "directory", defaultDirectory, "directory backend base URL")
	flags.StringVar(&opts.model, "model", syftrpc.DefaultModel, "model id sent with chat requests")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests and poll attempts")
	flags.BoolVar(&opts.parallel, "parallel", false, "search data sources concurrently")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRoutersCmd(opts),
		newWhoamiCmd(opts),
		newSearchCmd(opts),
		newChatCmd(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle("Error:"), err)
		os.Exit(1)
	}
}
