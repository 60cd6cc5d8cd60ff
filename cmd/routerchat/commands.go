package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenMined/network-ensemble-extras/clients/go/syftrpc"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

func newRoutersCmd(opts *options) *cobra.Command {
	var serviceType string

	cmd := &cobra.Command{
		Use:   "routers",
		Short: "List published routers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			routers, err := opts.client.ListRouters(cmd.Context())
			if err != nil {
				return err
			}
			switch serviceType {
			case "":
			case string(models.ServiceSearch), string(models.ServiceChat):
				routers = models.FilterRouters(routers, models.ServiceType(serviceType))
			default:
				return syftrpc.ValidationError(fmt.Sprintf("unknown service type %q", serviceType))
			}

			out := cmd.OutOrStdout()
			if len(routers) == 0 {
				fmt.Fprintln(out, dimStyle("No routers found."))
				return nil
			}
			for _, r := range routers {
				fmt.Fprintln(out, routerLine(r))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&serviceType, "type", "t", "", "only routers offering this service (search or chat)")
	return cmd
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the directory username and dispatch server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := opts.client.Username(cmd.Context())
			if err != nil {
				return err
			}
			server := opts.client.ServerURL(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Username: %s\nServer:   %s\n", username, server)
			return nil
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <router> <query...>",
		Short: "Search one data source",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args[1:], " "))
			if query == "" {
				return syftrpc.ValidationError("query is empty")
			}

			routers, err := opts.client.ListRouters(cmd.Context())
			if err != nil {
				return err
			}
			r := models.FindRouter(routers, args[0])
			if r == nil || !r.Offers(models.ServiceSearch) {
				return syftrpc.ValidationError(fmt.Sprintf("%q is not an available data source", args[0]))
			}

			results, err := opts.client.Search(cmd.Context(), r.Name, r.Author, query)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
}
