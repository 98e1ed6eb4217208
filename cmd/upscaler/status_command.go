package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show a job's progress, or daemon health without an id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				fmt.Fprintf(out, "%s: %s (%s)\n", health.Service, health.Status, ctx.baseURL())
				rows := make([][]string, 0, len(health.Stages))
				for _, st := range health.Stages {
					rows = append(rows, []string{st.Name, yesNo(st.Ready), st.Detail})
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"Stage", "Ready", "Detail"}, rows, nil, plainOutput(cmd)))
				}
				return nil
			}

			view, err := client.Status(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, view)
			}
			fmt.Fprintf(out, "Job:      %s\n", view.JobID)
			fmt.Fprintf(out, "Status:   %s\n", view.Status)
			fmt.Fprintf(out, "Progress: %.1f%%\n", view.Progress)
			fmt.Fprintf(out, "Message:  %s\n", view.Message)
			fmt.Fprintf(out, "Updated:  %s\n", formatWhen(view.UpdatedAt))
			if view.EstimatedCompletion != nil {
				fmt.Fprintf(out, "ETA:      %s\n", view.EstimatedCompletion.Local().Format(time.Kitchen))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
