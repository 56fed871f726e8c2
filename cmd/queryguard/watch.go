package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/queryguard/pkg/adapter"
	"github.com/vango-dev/queryguard/pkg/binding"
	"github.com/vango-dev/queryguard/pkg/guard"
)

type watchEvent struct {
	Version uint64         `json:"version"`
	Search  string         `json:"search"`
	Queries map[string]any `json:"queries"`
	Meta    guard.Meta     `json:"meta"`
}

func watchCmd() *cobra.Command {
	var (
		file         string
		resolverKind string
	)

	cmd := &cobra.Command{
		Use:   "watch --file <path>",
		Short: "Print the resolved search state whenever a file changes",
		Long: `Print the resolved search state whenever a file changes.

The file holds a search string. Each change, including edits made by other
programs, prints one JSON line with the resolved state. Stop with Ctrl-C.

Examples:
  queryguard watch --file state.qs
  queryguard watch --file state.qs --resolver struct`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cliLogger(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, def, err := searchResolver(resolverKind, logger)
			if err != nil {
				return err
			}
			a, err := adapter.NewFile(file, adapter.WithLogger(logger))
			if err != nil {
				return err
			}
			g, err := guard.New(guard.Options[any]{
				Adapter:  a,
				Resolver: res,
				Default:  def,
				Logger:   logger,
				OnError: func(err error) {
					errorMsg(cmd.ErrOrStderr(), "%v", err)
				},
			})
			if err != nil {
				return err
			}
			defer g.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for v := range binding.New(g).Watch(ctx) {
				err := enc.Encode(watchEvent{
					Version: v.Version,
					Search:  v.Search,
					Queries: v.Queries,
					Meta:    v.Meta,
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File holding the search string")
	cmd.Flags().StringVar(&resolverKind, "resolver", "schema", "Resolver: schema or struct")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
