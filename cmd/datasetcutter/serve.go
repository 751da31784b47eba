package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"

	"github.com/datasetcutter/datasetcutter/internal/api"
	"github.com/datasetcutter/datasetcutter/internal/config"
	"github.com/datasetcutter/datasetcutter/internal/dataset"
	"github.com/datasetcutter/datasetcutter/internal/db"
	"github.com/datasetcutter/datasetcutter/internal/encoder"
	"github.com/datasetcutter/datasetcutter/internal/library"
	"github.com/datasetcutter/datasetcutter/internal/logging"
	"github.com/datasetcutter/datasetcutter/internal/playback"
	"github.com/datasetcutter/datasetcutter/internal/settings"
	"github.com/datasetcutter/datasetcutter/internal/ui"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local web UI",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := applyServeFlags(cmd, args, cfg); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().IntP("port", "p", 0, "First port to try (default $PORT or 8000)")
	cmd.Flags().Bool("headless", false, "Do not show the system tray")
	cmd.Flags().Bool("no-browser", false, "Do not open the browser")
	return cmd
}

func applyServeFlags(cmd *cobra.Command, args []string, cfg *config.EnvConfig) error {
	if port, ok, err := legacyPortArg(args); err != nil {
		return err
	} else if ok {
		cfg.SetPort(port)
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		if _, err := config.ParsePort(fmt.Sprint(port)); err != nil {
			return fmt.Errorf("invalid --port: %w", err)
		}
		cfg.SetPort(port)
	}
	if v, _ := cmd.Flags().GetBool("headless"); v {
		cfg.SetHeadless(true)
	}
	if v, _ := cmd.Flags().GetBool("no-browser"); v {
		cfg.SetNoBrowser(true)
	}
	return nil
}

type versioner interface {
	Version(ctx context.Context) (string, error)
	Path() string
}

func logFFmpegVersion(ctx context.Context, logger *slog.Logger, ff versioner) {
	path := logging.SanitizePath(ff.Path())
	v, err := ff.Version(ctx)
	if err != nil {
		logger.Warn("ffmpeg -version failed", "path", path, "error", err)
		return
	}
	logger.Info("using ffmpeg", "path", path, "version", v)
}

func serve(cfg config.Config) error {
	for _, dir := range []string{cfg.DataDir(), cfg.VideosDir(), cfg.TrashDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	var out io.Writer = os.Stdout
	logFile, err := logging.OpenLogFile(cfg.LogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open log file: %v\n", err)
	} else {
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}
	logger := logging.NewLogger(cfg.LogLevel(), out)
	logger.Info("starting dataset cutter", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	ffmpegPath, err := encoder.Resolve(cfg.FFmpegBinary(), cfg.UserBinDir())
	if err != nil {
		logger.Warn("ffmpeg not found, clip export will fail until it is installed", "error", err)
		ffmpegPath = "ffmpeg"
	}
	ff := encoder.New(encoder.DefaultConfig(ffmpegPath, logging.WithComponent(logger, "encoder")))
	logFFmpegVersion(context.Background(), logger, ff)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	lib, err := library.New(cfg.VideosDir(), logging.WithComponent(logger, "library"))
	if err != nil {
		return err
	}
	store, err := settings.Open(cfg.SettingsPath(), cfg.DefaultDatasetRoot())
	if err != nil {
		return err
	}
	logger.Info("dataset root", "path", logging.SanitizePath(store.Get().TrainingDir()))

	svc := dataset.NewService(dataset.ServiceConfig{
		Repo:      dataset.NewRepository(database.Conn()),
		Videos:    lib,
		Settings:  store,
		Encoder:   ff,
		TrashDir:  cfg.TrashDir(),
		UndoDepth: cfg.UndoDepth(),
		Logger:    logging.WithComponent(logger, "dataset"),
	})

	var quitOnce sync.Once
	quitCh := make(chan struct{})
	requestQuit := func() { quitOnce.Do(func() { close(quitCh) }) }

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		PortScan:       config.DefaultPortScan,
		Dataset:        svc,
		Library:        lib,
		Settings:       store,
		Videos:         playback.NewServer(lib, logging.WithComponent(logger, "playback")),
		LabelThreshold: cfg.LabelThreshold(),
		OnQuit:         requestQuit,
		Logger:         logger,
	})
	if err := apiServer.Listen(); err != nil {
		return err
	}
	url := apiServer.URL()

	fmt.Println()
	fmt.Println("Dataset Cutter " + config.Version)
	fmt.Println("  UI:      " + url)
	fmt.Println("  Dataset: " + store.Get().TrainingDir())
	fmt.Println("  Log:     " + cfg.LogPath())
	fmt.Println()

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			requestQuit()
		}
	}()

	openUI := func() {
		logger.Info("opening browser", "url", url)
		launcher.Open(url)
	}

	if !cfg.NoBrowser() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := api.WaitReady(ctx, url); err != nil {
				logger.Warn("server did not answer ping, not opening browser", "error", err)
				return
			}
			openUI()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			requestQuit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			URL:    url,
			Logger: logger,
			OnOpen: openUI,
			OnQuit: requestQuit,
		})
		go func() {
			<-quitCh
			tray.Quit()
		}()
		// The tray loop has to own the main thread on macOS.
		tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
