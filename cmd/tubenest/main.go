package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/scanner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tubenest",
		Short:         "Aggregate remote channels, local media trees and curated lists into one catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config-dir", "", "configuration directory (default $HOME/.config/tubenest)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = viper.BindPFlag("CONFIG_DIR", flags.Lookup("config-dir"))
	_ = viper.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))

	root.AddCommand(newServeCmd(), newRefreshCmd(), newScanCmd(), newCountCmd())
	return root
}

// withApp wires the application, runs fn and releases resources
func withApp(fn func(ctx context.Context, app *App) error) error {
	app, cleanup, err := initializeApp()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()
	return fn(context.Background(), app)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				return app.Serve(ctx)
			})
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh stale remote sources once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				if err := app.syncSources(ctx); err != nil {
					return err
				}
				report, err := app.Refresh.RefreshStale(ctx, app.Config.YouTubeAPIKey)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if report.Skipped {
					fmt.Fprintln(out, "Refresh skipped: YOUTUBE_API_KEY is not set")
					return nil
				}
				fmt.Fprintf(out, "Stale: %d, refreshed: %d, failed: %d\n", report.Stale, report.Refreshed, report.Failed)
				for _, e := range report.Errors {
					fmt.Fprintf(out, "  %s: %v\n", e.SourceID, e.Err)
				}
				return nil
			})
		},
	}
}

func newScanCmd() *cobra.Command {
	var maxDepth, depth int
	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "List the folders and videos visible at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				folders, videos, err := app.Catalog.BrowseFolder(ctx, args[0], maxDepth, depth)
				if err != nil {
					return err
				}
				printListing(cmd.OutOrStdout(), folders, videos)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 2, "depth below which subfolders are flattened")
	cmd.Flags().IntVar(&depth, "depth", 1, "depth of path within its source, starting at 1")
	return cmd
}

func newCountCmd() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "count <path>",
		Short: "Count the videos below a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				count, err := app.Catalog.CountVideosInFolder(ctx, args[0], maxDepth)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 2, "depth below which subfolders are flattened")
	return cmd
}

func printListing(out io.Writer, folders []scanner.Folder, videos []models.VideoRecord) {
	for _, f := range folders {
		fmt.Fprintf(out, "%s/\n", f.Name)
	}
	for _, v := range videos {
		marker := ""
		if v.Flattened {
			marker = " (flattened)"
		}
		fmt.Fprintf(out, "%s%s\n", v.Path, marker)
	}
}
