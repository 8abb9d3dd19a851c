package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out, format string

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Re-export a manifest in the tracking layout without looking anything up",
		Long: `Decode a manifest and write its records in the export layout
(Container No, Carrier, System ETA, ...) without contacting the tracking
service. Useful for converting between csv and xlsx.`,
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
			defer app.Close(cmd.Context())

			view, err := opts.ingest(cmd.Context(), cfg, app, args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), view)

			data, name, err := app.Service.Export(view.ID, f)
			if err != nil {
				return err
			}
			path := exportPath(out, name)
			if err := writeExport(path, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d records)\n", path, view.Selected)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default Tracking_Update_<date>.<format>)")
	cmd.Flags().StringVar(&format, "format", "", "Export format: csv or xlsx (default from --out, else csv)")
	return cmd
}
