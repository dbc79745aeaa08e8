package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/library"
	"github.com/KaramelBytes/tabletalk/internal/nlq"
	"github.com/KaramelBytes/tabletalk/internal/server"
	"github.com/KaramelBytes/tabletalk/internal/sqlstore"
)

var (
	serveAddr      string
	serveUploadDir string
	serveDBPath    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the upload, file management and chat endpoints. The first configured
default file found in the upload directory is loaded at start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			c.ListenAddr = serveAddr
		}
		if serveUploadDir != "" {
			c.UploadDir = serveUploadDir
		}
		if serveDBPath != "" {
			c.DBPath = serveDBPath
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, c.ListenAddr, c.UploadDir, c.DBPath)
	},
}

func runServer(ctx context.Context, addr, uploadDir, dbPath string) error {
	o, err := buildOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	opts, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}
	backend, err := sqlstore.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer backend.Close()
	lib, err := library.Open(uploadDir)
	if err != nil {
		return err
	}

	store := dataset.NewStore(backend, profileOptions(cfg), logger.Named("dataset"))
	pipeline := nlq.NewPipeline(store, o, opts, logger.Named("nlq"))
	srv := server.New(store, lib, pipeline, server.Options{
		Addr:           addr,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultFiles:   cfg.DefaultFiles,
	}, logger.Named("http"))

	if ds, ok := srv.LoadDefault(ctx); ok {
		fmt.Printf("✓ Loaded default file: %s (%d rows)\n", ds.Source, ds.Rows)
	}
	logger.Info("oracle ready", zap.String("model", o.Model()))
	fmt.Printf("🚀 Serving on %s (uploads in %s)\n", addr, lib.Dir())
	return srv.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config listen_addr)")
	serveCmd.Flags().StringVar(&serveUploadDir, "upload-dir", "", "directory for uploaded files (overrides config upload_dir)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database file (overrides config db_path)")
}
