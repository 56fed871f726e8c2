package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/queryguard/pkg/adapter"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/resolver"
)

func setCmd() *cobra.Command {
	var (
		file    string
		push    bool
		deletes []string
	)

	cmd := &cobra.Command{
		Use:   "set --file <path> key=value... [-- -key...]",
		Short: "Update a search string stored in a file",
		Long: `Update a search string stored in a file.

Each key=value argument sets a key; repeating a key sets a list. Keys given
with --delete, or as -key after "--", are removed. Keys that are not
mentioned are left as they are.

Examples:
  queryguard set --file state.qs q=go page=2
  queryguard set --file state.qs tag=a tag=b --delete page
  queryguard set --file state.qs -- -q`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cliLogger(cmd)
			return runSet(cmd.OutOrStdout(), logger, file, args, deletes, push)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File holding the search string")
	cmd.Flags().BoolVar(&push, "push", false, "Record the write as a new history entry")
	cmd.Flags().StringSliceVarP(&deletes, "delete", "d", nil, "Keys to remove")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSet(w io.Writer, logger *slog.Logger, file string, args, deletes []string, push bool) error {
	patch, keys, err := parseAssignments(args, deletes)
	if err != nil {
		return err
	}

	a, err := adapter.NewFile(file, adapter.WithLogger(logger))
	if err != nil {
		return err
	}

	def := make(map[string]any, len(keys))
	for _, k := range keys {
		def[k] = nil
	}
	g, err := guard.New(guard.Options[any]{
		Adapter:  a,
		Resolver: resolver.Passthrough(),
		Default:  def,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer g.Close()

	var opts []guard.UpdateOption
	if push {
		opts = append(opts, guard.Push)
	}
	if err := g.Set(patch, opts...); err != nil {
		return err
	}

	search, err := g.Search()
	if err != nil {
		return err
	}
	success(w, "%s", search)
	return nil
}

// parseAssignments turns key=value and -key arguments into a patch. It
// returns the touched keys in first-seen order.
func parseAssignments(args, deletes []string) (*guard.Patch[any], []string, error) {
	values := make(map[string][]string)
	var keys []string
	seen := make(map[string]bool)
	touch := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	var removed []string
	for _, arg := range args {
		if k, ok := strings.CutPrefix(arg, "-"); ok {
			if k == "" {
				return nil, nil, usageError(fmt.Sprintf("invalid argument %q", arg))
			}
			removed = append(removed, k)
			touch(k)
			continue
		}
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, nil, usageError(fmt.Sprintf("invalid argument %q", arg)).
				WithSuggestion("Use key=value to set and --delete key to remove")
		}
		values[k] = append(values[k], v)
		touch(k)
	}
	for _, k := range deletes {
		removed = append(removed, k)
		touch(k)
	}
	if len(keys) == 0 {
		return nil, nil, usageError("nothing to set").
			WithSuggestion("Pass key=value arguments or --delete")
	}

	patch := guard.NewPatch[any]()
	for _, k := range keys {
		switch vs := values[k]; len(vs) {
		case 0:
		case 1:
			patch.Set(k, vs[0])
		default:
			patch.Set(k, vs)
		}
	}
	patch.Delete(removed...)
	return patch, keys, nil
}
