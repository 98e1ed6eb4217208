package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List enhancement models and their availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Models(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}

			keys := make([]string, 0, len(resp.Models))
			for key := range resp.Models {
				keys = append(keys, key)
			}
			slices.Sort(keys)

			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				info := resp.Models[key]
				id := key
				if key == resp.DefaultModel {
					id += " *"
				}
				scales := make([]string, 0, len(info.Scales))
				for _, s := range info.Scales {
					scales = append(scales, strconv.Itoa(s)+"x")
				}
				available := yesNo(info.Available)
				if !info.Available && info.Detail != "" {
					available += " (" + info.Detail + ")"
				}
				rows = append(rows, []string{id, info.Name, strings.Join(scales, ", "), available, truncate(info.OptimalFor, 40)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Model", "Name", "Scales", "Available", "Best for"}, rows, nil, plainOutput(cmd)))
			fmt.Fprintf(out, "* default (scale %dx)\n", resp.DefaultScale)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
