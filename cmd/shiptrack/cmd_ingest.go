package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE",
		Short: "Decode a manifest and print the admitted shipment records",
		Long: `Decode a manifest and print the records that survived normalization.

FILE may be an .xlsx or .csv file, or "-" to read pasted text from stdin.
The ingest summary (header row, dropped rows, column collisions) is written
to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, app, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			view, err := opts.ingest(cmd.Context(), cfg, app, args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), view)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTRACKING NUMBER\tCARRIER\tSYSTEM ETA\tMODE")
			for _, r := range view.Records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.TrackingNumber, r.Carrier, r.SystemETA, r.Mode)
			}
			return tw.Flush()
		},
	}
}
