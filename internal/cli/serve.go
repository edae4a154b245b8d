package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/docqa/internal/adapters/filewatcher"
	httpserver "github.com/0xcro3dile/docqa/internal/infrastructure/http"
)

var (
	serveAddr     string
	serveWatch    string
	serveDebounce time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the upload, ask and health endpoints under /api.
With --watch, the newest document dropped into the folder is ingested
and replaces the current one.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveWatch, "watch", "", "drop folder to watch for documents (overrides server.watch_dir)")
	serveCmd.Flags().DurationVar(&serveDebounce, "debounce", filewatcher.DefaultDebounce, "quiet period before a changed file is ingested")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	watchDir := a.Config.Server.WatchDir
	if serveWatch != "" {
		watchDir = serveWatch
	}

	srv := httpserver.NewServer(a.Orchestrator, a.Loader, httpserver.Config{
		Addr:         addr,
		AllowOrigins: a.Config.Server.AllowOrigins,
	}, a.Logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.Start(ctx)
	})
	if watchDir != "" {
		g.Go(func() error {
			err := a.WatchFolder(ctx, watchDir, serveDebounce)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
