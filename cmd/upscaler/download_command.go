package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download a completed job's enhanced video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			dest := strings.TrimSpace(output)
			if dest == "" {
				dest = defaultDownloadName(id)
			}
			written, err := ctx.transferClient().Download(cmd.Context(), id, dest)
			if err != nil {
				var respErr *responseError
				if errors.As(err, &respErr) && respErr.Status == http.StatusAccepted {
					return fmt.Errorf("job %s is still processing; try again later", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", dest, formatBytes(written))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (default ./enhanced_<job-id>.mp4)")
	return cmd
}
