package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/api"
	"github.com/kamkard/gltfview/internal/auth"
	"github.com/kamkard/gltfview/internal/config"
	"github.com/kamkard/gltfview/internal/controller"
	"github.com/kamkard/gltfview/internal/deeplink"
	"github.com/kamkard/gltfview/internal/dropzone"
	"github.com/kamkard/gltfview/internal/events"
	"github.com/kamkard/gltfview/internal/fetch"
	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/history"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
	"github.com/kamkard/gltfview/internal/objurl"
	"github.com/kamkard/gltfview/internal/session"
	"github.com/kamkard/gltfview/internal/validator"
	"github.com/kamkard/gltfview/internal/viewer"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var link string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the viewer session service",
		Long: `Run the HTTP API, the metrics endpoint and, when DROP_DIR is set, the
watched drop directory. Configuration is read from the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if link != "" {
				cfg.DeepLink = link
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&link, "link", "", "deep-link fragment, e.g. '#model=https://host/a.glb&kiosk=1' (overrides DEEP_LINK)")
	return cmd
}

func serve(cfg *config.Config) error {
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return err
	}
	defer logging.Sync()

	logging.Info("gltfview starting...",
		zap.String("version", version),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := deeplink.Parse(cfg.DeepLink)

	// Sources
	var s3src *fetch.S3Source
	if cfg.S3Endpoint != "" || cfg.S3AccessKey != "" {
		var err error
		s3src, err = fetch.NewS3Source(ctx, fetch.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			logging.Fatal("s3 source init failed", zap.Error(err))
		}
	}
	remote := fetch.NewRemote(cfg.FetchTimeout, cfg.MaxAssetSize, s3src)
	broker := objurl.New()

	broadcaster := events.NewBroadcaster()
	logging.Info("SSE broadcaster initialized")

	// History
	var hist history.Recorder
	if cfg.DatabaseURL != "" {
		logging.Info("connecting to PostgreSQL...")
		pg, err := history.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logging.Fatal("database connection failed", zap.Error(err))
		}
		hist = pg
	} else {
		hist = history.NewMemory(history.DefaultMemoryLimit)
	}
	defer hist.Close()

	// Validation
	pool := validator.NewPool(cfg.ValidatorWorkers,
		func(_ context.Context, r *validator.Report) {
			broadcaster.Publish(events.Event{Type: events.EventReport, Data: r})
		},
		func(ctx context.Context, r *validator.Report) {
			data, err := json.Marshal(r)
			if err != nil {
				return
			}
			if err := hist.RecordReport(ctx, r.SceneID, data); err != nil {
				logging.Warn("failed to store validation report",
					zap.String("scene", r.SceneID), zap.Error(err))
			}
		},
	)
	pool.Start(ctx)
	defer pool.Stop()

	ctrl := controller.New(controller.Config{
		Session: session.New(events.SessionObserver(broadcaster)),
		Broker:  broker,
		Viewer: viewer.NewGLTFViewer(&fetch.Mux{Broker: broker, Remote: remote}, viewer.Options{
			Preset:         opts.Preset,
			CameraPosition: opts.CameraPosition,
			MaxAssetSize:   cfg.MaxAssetSize,
		}),
		Validator:   pool,
		Fetcher:     remote,
		Notifier:    events.Alerter{B: broadcaster},
		History:     hist,
		Kiosk:       opts.Kiosk,
		LoadTimeout: cfg.LoadTimeout,
	})

	srv := api.NewServer(api.Deps{
		Controller:    ctrl,
		Broker:        broker,
		Broadcaster:   broadcaster,
		Auth:          auth.New(cfg.JWTSecret),
		Reports:       pool,
		History:       hist,
		Options:       opts,
		MaxUploadSize: cfg.MaxUploadSize,
		Version:       version,
	})

	// Watched drop directory
	if cfg.DropDir != "" {
		w, err := dropzone.New(cfg.DropDir, cfg.DropSettle,
			func(ctx context.Context, set fileset.Set) {
				broadcaster.Publish(events.Event{Type: events.EventDropStart})
				ctrl.Load(ctx, controller.FromFiles(set))
			},
			func(err error) {
				broadcaster.Publish(events.Event{Type: events.EventDropError, Message: err.Error()})
			})
		if err != nil {
			logging.Fatal("drop directory init failed", zap.Error(err))
		}
		if err := w.Start(ctx); err != nil {
			logging.Fatal("drop directory watch failed", zap.Error(err))
		}
		defer w.Stop()
	}

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	if src, ok := initialSource(opts, cfg); ok {
		go func() {
			if _, err := ctrl.Load(ctx, src); err != nil && !errors.Is(err, controller.ErrSuperseded) {
				logging.Warn("initial load failed", zap.Stringer("source", src), zap.Error(err))
			}
		}()
	}

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// initialSource picks the startup load: the deep-link model as an address,
// otherwise the default asset fetched into memory. An empty default disables
// the startup load.
func initialSource(opts deeplink.Options, cfg *config.Config) (controller.Source, bool) {
	switch {
	case opts.Model != "":
		return controller.FromAddress(opts.Model), true
	case cfg.DefaultModelURL != "":
		return controller.FromFetch(cfg.DefaultModelURL), true
	}
	return controller.Source{}, false
}
