package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"upscaler/internal/jobs"
)

const defaultPollInterval = 2 * time.Second

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		model    string
		scale    int
		wait     bool
		output   string
		interval time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "submit <video>",
		Short: "Upload a video for enhancement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			resp, err := ctx.transferClient().Submit(cmd.Context(), submitRequest{
				Path:  path,
				Model: strings.TrimSpace(model),
				Scale: scale,
			})
			if err != nil {
				return err
			}
			if asJSON && !wait {
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s accepted (%s, %s, %dx)\n", resp.JobID, formatBytes(resp.FileSize), resp.Model, resp.Scale)
			if !wait {
				fmt.Fprintf(out, "Track it with: upscaler status %s\n", resp.JobID)
				return nil
			}

			view, err := pollUntilDone(cmd.Context(), ctx.client(), resp.JobID, interval, out)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, view)
			}
			if view.Status != jobs.StatusCompleted {
				return fmt.Errorf("job %s %s: %s", view.JobID, view.Status, view.Message)
			}
			fmt.Fprintln(out, view.Message)
			if output == "" {
				return nil
			}
			written, err := ctx.transferClient().Download(cmd.Context(), view.JobID, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s (%s)\n", output, formatBytes(written))
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Enhancement model (default from daemon config)")
	cmd.Flags().IntVarP(&scale, "scale", "s", 0, "Scale factor (default from daemon config)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().StringVarP(&output, "output", "o", "", "With --wait, download the result to this path")
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Status polling interval with --wait")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// pollUntilDone polls the job until it reaches a terminal status, printing
// each change. On a terminal the line is rewritten in place.
func pollUntilDone(ctx context.Context, client *apiClient, id string, interval time.Duration, out io.Writer) (jobs.View, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	inPlace := isTerminal(out)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		view, err := client.Status(ctx, id)
		if err != nil {
			var respErr *responseError
			if errors.As(err, &respErr) && respErr.Code == "not_found" {
				return jobs.View{}, fmt.Errorf("job %s no longer exists (cancelled or expired)", id)
			}
			return jobs.View{}, err
		}
		line := progressLine(string(view.Status), view.Progress, view.Message)
		if line != last {
			if inPlace {
				fmt.Fprintf(out, "\r\033[K%s", line)
			} else {
				fmt.Fprintln(out, line)
			}
			last = line
		}
		if view.Status.IsTerminal() {
			if inPlace {
				fmt.Fprintln(out)
			}
			return view, nil
		}
		select {
		case <-ctx.Done():
			return jobs.View{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func defaultDownloadName(id string) string {
	return filepath.Join(".", fmt.Sprintf("enhanced_%s.mp4", id))
}
