package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/queryguard/pkg/query"
	"github.com/vango-dev/queryguard/pkg/resolver"
)

func decodeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "decode <search>",
		Short: "Decode a search string into its raw mapping",
		Long: `Decode a search string into its raw mapping.

Keys that occur once decode to a string, repeated keys to a list.

Examples:
  queryguard decode '?q=go&tag=a&tag=b'
  queryguard decode 'page=2' -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeRaw(cmd.OutOrStdout(), query.Decode(args[0]), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")

	return cmd
}

func encodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <json>",
		Short: "Encode a JSON object into a canonical search string",
		Long: `Encode a JSON object into a canonical search string.

Arrays become repeated keys, null values are skipped and other values are
formatted as text. Keys are emitted in sorted order.

Examples:
  queryguard encode '{"q":"go","page":2,"tag":["a","b"]}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value map[string]any
			if err := json.Unmarshal([]byte(args[0]), &value); err != nil {
				return usageError("argument is not a JSON object").Wrap(err)
			}
			raw, err := resolver.ToRaw(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), query.Encode(raw))
			return nil
		},
	}
	return cmd
}

func normalizeCmd() *cobra.Command {
	var canonical bool

	cmd := &cobra.Command{
		Use:   "normalize <search>",
		Short: "Print a search string with its leading marker",
		Long: `Print a search string with its leading marker.

With --canonical the string is decoded and re-encoded, which sorts keys
and escapes values consistently.

Examples:
  queryguard normalize 'b=2&a=1'
  queryguard normalize 'b=2&a=1' --canonical`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			search := query.Normalize(args[0])
			if canonical {
				search = query.Encode(query.Decode(search))
			}
			fmt.Fprintln(cmd.OutOrStdout(), search)
			return nil
		},
	}

	cmd.Flags().BoolVar(&canonical, "canonical", false, "Sort keys and re-escape values")

	return cmd
}

// writeRaw prints raw in the requested format.
func writeRaw(w io.Writer, raw query.Raw, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	case "yaml":
		plain := make(map[string]any, len(raw))
		for k, v := range raw {
			if v.IsList() {
				plain[k] = v.Strings()
			} else {
				plain[k] = v.String()
			}
		}
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return enc.Encode(plain)
	}
	return usageError(fmt.Sprintf("unknown output format %q", format)).
		WithSuggestion("Use -o json or -o yaml")
}
