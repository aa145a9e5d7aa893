package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"workspace-agent-backend/config"
	"workspace-agent-backend/controller"
	"workspace-agent-backend/dao"
	"workspace-agent-backend/router"
	"workspace-agent-backend/service/chat"
	"workspace-agent-backend/service/metrics"
	"workspace-agent-backend/service/mq"
	"workspace-agent-backend/service/records"
	"workspace-agent-backend/service/title"
	"workspace-agent-backend/service/tools"
	"workspace-agent-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func runServe(ctx context.Context, configPath string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := dao.InitDB(cfg.MySQL); err != nil {
		return err
	}
	if err := dao.AutoMigrate(dao.DB); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store, closeStore, err := newRecordStore(ctx, cfg.Records)
	if err != nil {
		return err
	}
	defer closeStore()

	prompt, err := chat.NewSystemPrompt()
	if err != nil {
		return err
	}

	modelClient := utils.NewHTTPClient(utils.WithTimeout(cfg.Model.RequestTimeout))

	titleLLM, err := title.NewOpenAILLM(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.TitleModel, modelClient)
	if err != nil {
		return fmt.Errorf("failed to create title model: %w", err)
	}
	titles := title.NewGenerator(titleLLM, dao.DB, cfg.Title.Workers, cfg.Title.QueueSize)
	titleCtx, stopTitles := context.WithCancel(context.Background())
	titles.Run(titleCtx)
	defer func() {
		stopTitles()
		titles.Wait()
	}()

	messages := chat.NewMessageStore(dao.DB)
	orchestrator := &chat.Orchestrator{
		DB:       dao.DB,
		Upstream: chat.NewOpenAIStreamer(cfg.Model.APIKey, cfg.Model.BaseURL, modelClient, cfg.Model.RetryAttempts),
		Store:    messages,
		Transcripts: &chat.TranscriptBuilder{
			Store:        messages,
			Prompt:       prompt,
			HistoryLimit: cfg.Agent.HistoryLimit,
		},
		Executor:     tools.NewExecutor(store),
		Titles:       titles,
		Metrics:      m,
		MaxRounds:    cfg.Agent.MaxRounds,
		DefaultModel: cfg.Model.DefaultModel,
	}

	if cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(cfg.MQ)
		if err != nil {
			return err
		}
		defer publisher.Shutdown()
		orchestrator.Auditor = publisher
	}

	controller.SetChatEngine(orchestrator)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Register(reg),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server started", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func newRecordStore(ctx context.Context, cfg config.RecordsConfig) (tools.RecordStore, func(), error) {
	if cfg.Backend == "mcp" {
		store, err := records.DialMCPStore(ctx, cfg.MCPEndpoint, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close mcp client", "err", err)
			}
		}, nil
	}
	return records.NewDBStore(dao.DB), func() {}, nil
}
