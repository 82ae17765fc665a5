package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdrive/internal/config"
	"github.com/xxxsen/ragdrive/internal/handler"
	"github.com/xxxsen/ragdrive/internal/job"
	"github.com/xxxsen/ragdrive/internal/middleware"
	"github.com/xxxsen/ragdrive/internal/remote"
	"github.com/xxxsen/ragdrive/internal/schedule"
	"github.com/xxxsen/ragdrive/internal/watch"
)

func main() {
	var configPath string
	var envFile string

	rootCmd := &cobra.Command{
		Use:          "ragdrive",
		Short:        "question answering over a drive folder",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	load := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		if err := config.LoadEnvFile(envFile); err != nil {
			return nil, err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return cfg, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(cmd.Context(), a)
		},
	}

	var folderID string
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest a folder and write the document cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.svc.Ingest(cmd.Context(), folderID)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	ingestCmd.Flags().StringVar(&folderID, "folder", "", "folder id to ingest")
	_ = ingestCmd.MarkFlagRequired("folder")

	var question string
	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "answer a question from the cached documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.svc.Restore(cmd.Context()); err != nil {
				return err
			}
			answer, err := a.svc.Answer(cmd.Context(), question)
			if err != nil {
				return err
			}
			return printJSON(cmd, answer)
		},
	}
	askCmd.Flags().StringVar(&question, "query", "", "question to answer")
	_ = askCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(runCmd, ingestCmd, askCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := a.svc.Restore(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("restore cached snapshot failed", zap.Error(err))
	}

	sched := schedule.NewCronScheduler()
	resync := job.NewResyncJob(a.svc)
	if err := sched.AddJob(resync, cfg.Resync.Cron); err != nil {
		return err
	}
	if a.cacheRepo != nil && cfg.EmbedCache.CleanupCron != "" {
		if err := sched.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.EmbedCache.KeepDays), cfg.EmbedCache.CleanupCron); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	if cfg.Watch.Enabled {
		if err := startWatcher(ctx, a, func(ctx context.Context) error {
			_, err := sched.Trigger(ctx, resync.Name())
			return err
		}); err != nil {
			return err
		}
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	deps := handler.RouterDeps{
		RAG:             handler.NewRAGHandler(a.svc),
		IngestRateLimit: time.Duration(cfg.IngestRateLimit) * time.Second,
	}
	engine, err := webapi.NewEngine(
		"/",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger := logutil.GetLogger(context.Background())
	if a.lru != nil {
		stats := a.lru.Stats()
		logger.Info("embedding lru stats", zap.Int64("hits", stats.Hits), zap.Int64("misses", stats.Misses))
	}
	logger.Info("server stopping...")
	return nil
}

func startWatcher(ctx context.Context, a *app, trigger func(ctx context.Context) error) error {
	resolver, ok := a.remote.(remote.DirResolver)
	if !ok {
		logutil.GetLogger(ctx).Warn("watch is only supported for the local remote store", zap.String("remote", a.remote.Name()))
		return nil
	}
	dirFunc := func() string {
		folderID := a.svc.ActiveFolder()
		if folderID == "" {
			return ""
		}
		dir, err := resolver.FolderPath(folderID)
		if err != nil {
			return ""
		}
		return dir
	}
	w, err := watch.New(dirFunc, time.Duration(a.cfg.Watch.DebounceMs)*time.Millisecond, trigger)
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}
	go func() {
		_ = w.Run(ctx)
	}()
	return nil
}
