// Command shiptrack ingests shipment manifests, tracks them against the live
// tracking service and writes the updated export, all from local files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shiptrack/internal/application"
	"github.com/JonMunkholm/shiptrack/internal/config"
	"github.com/JonMunkholm/shiptrack/internal/core"
	"github.com/JonMunkholm/shiptrack/internal/logging"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	envFile  string
	logLevel string
	mode     string
	paste    bool

	// lookup replaces the HTTP tracking client in tests.
	lookup core.Lookup
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "shiptrack",
		Short: "Ingest, track and export shipment manifests",
		Long: `shiptrack reads a shipment manifest (xlsx, csv or pasted text), maps its
columns onto tracking number, carrier and system ETA, looks every selected
shipment up in the tracking service and writes an updated export.

Configuration comes from the environment (and an optional .env file), the
same variables the server reads: TRACKING_API_URL, TRACKING_TIMEOUT,
INGEST_MATCH_MODE, INGEST_RULES_FILE, DATABASE_URL, KAFKA_BROKERS, ...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load if present")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.mode, "mode", "", "Header rule profile: broad, strict or a profile from the rules file")
	root.PersistentFlags().BoolVar(&opts.paste, "paste", false, "Treat the input as pasted tab- or comma-separated text")

	root.AddCommand(newIngestCmd(opts))
	root.AddCommand(newTrackCmd(opts))
	root.AddCommand(newExportCmd(opts))
	return root
}

func main() {
	if err := newRootCmd(&rootOptions{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", core.FormatUserError(err))
		fmt.Fprintln(os.Stderr, "detail:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the application for one command.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *application.App, error) {
	if o.envFile != "" {
		if _, err := os.Stat(o.envFile); err == nil {
			if err := godotenv.Load(o.envFile); err != nil {
				return nil, nil, fmt.Errorf("load %s: %w", o.envFile, err)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.Logging.Format)

	var appOpts []application.Option
	if o.lookup != nil {
		appOpts = append(appOpts, application.WithLookup(o.lookup))
	}
	app, err := application.New(cmd.Context(), cfg, logger, appOpts...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app, nil
}

// ingest reads path and opens a manifest session. "-" reads pasted text
// from stdin.
func (o *rootOptions) ingest(ctx context.Context, cfg *config.Config, app *application.App, path string, stdin io.Reader) (*core.ManifestView, error) {
	var r io.Reader = stdin
	name := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open manifest: %w", err)
		}
		defer f.Close()
		r = f
		name = filepath.Base(path)
	}

	data, err := core.ReadLimited(r, cfg.Ingest.MaxFileSize)
	if err != nil {
		return nil, &core.DecodeError{Source: name, Err: err}
	}

	if o.paste || path == "-" {
		return app.Service.IngestText(ctx, string(data), o.mode)
	}
	return app.Service.Ingest(ctx, name, data, o.mode)
}

// printSummary writes the ingest outcome to w.
func printSummary(w io.Writer, v *core.ManifestView) {
	header := "not found, first row used"
	if v.HeaderFound {
		header = fmt.Sprintf("row %d", v.HeaderRow+1)
	}
	fmt.Fprintf(w, "%s: %d rows read, %d admitted, %d dropped (header %s, profile %s)\n",
		v.Source, v.RowsRead, v.Admitted, v.Dropped, header, v.MatchMode)
	for _, c := range v.Collisions {
		fmt.Fprintf(w, "warning: %s\n", c)
	}
}

// exportPath returns out, or the date-stamped default name when out is empty.
func exportPath(out string, name string) string {
	if out != "" {
		return out
	}
	return name
}

// writeExport writes data to a temporary file beside path and renames it
// into place, so a failed write never leaves a partial export behind.
func writeExport(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// formatFor picks the export format from --format, then the output extension.
func formatFor(flag, out string) (core.ExportFormat, error) {
	if flag == "" && out != "" {
		flag = strings.TrimPrefix(filepath.Ext(out), ".")
	}
	return core.ParseExportFormat(flag)
}
