package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

func newTrackCmd(opts *rootOptions) *cobra.Command {
	var out, format string

	cmd := &cobra.Command{
		Use:   "track FILE",
		Short: "Track every shipment in a manifest and write the updated export",
		Long: `Decode a manifest, look every record up in the tracking service and write
the updated export. Progress is reported on stderr. Interrupting the command
cancels the run and still writes what was resolved so far.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, out)
			if err != nil {
				return err
			}

			cfg, app, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer app.Close(context.WithoutCancel(cmd.Context()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			view, err := opts.ingest(ctx, cfg, app, args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), view)

			run, err := trackManifest(ctx, app.Service, view.ID, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			fmt.Fprintf(stderr, "run %s %s: %d resolved, %d failed, %d skipped, %d eta changes in %s\n",
				run.ID, run.Status, run.Summary.Resolved, run.Summary.Failed, run.Summary.Skipped,
				len(run.Summary.ETAChanged), run.Summary.Duration.Round(time.Millisecond))

			data, name, err := app.Service.Export(view.ID, f)
			if err != nil {
				return err
			}
			path := exportPath(out, name)
			if err := writeExport(path, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default Tracking_Update_<date>.<format>)")
	cmd.Flags().StringVar(&format, "format", "", "Export format: csv or xlsx (default from --out, else csv)")
	return cmd
}

// trackManifest starts a run, streams its progress to w and waits for it to
// end. Cancelling ctx cancels the run; the partial record is still returned.
func trackManifest(ctx context.Context, svc *core.Service, id string, w io.Writer) (core.RunRecord, error) {
	if _, err := svc.StartRun(ctx, id); err != nil {
		return core.RunRecord{}, err
	}

	updates, err := svc.SubscribeProgress(id)
	if err != nil {
		return core.RunRecord{}, err
	}

	for {
		select {
		case p, ok := <-updates:
			if !ok {
				fmt.Fprintln(w)
				return svc.WaitRun(context.WithoutCancel(ctx), id)
			}
			fmt.Fprintf(w, "\rtracking %d/%d (%d%%)", p.Completed, p.Total, p.Percent)
		case <-ctx.Done():
			fmt.Fprintln(w, "\ncancelling...")
			if err := svc.CancelRun(id); err != nil && !errors.Is(err, core.ErrNoActiveRun) {
				return core.RunRecord{}, err
			}
			return svc.WaitRun(context.WithoutCancel(ctx), id)
		}
	}
}
