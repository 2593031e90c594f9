package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/app"
	"github.com/Uvaancovie/nova-prop-backend/internal/config"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/queue"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
	"github.com/Uvaancovie/nova-prop-backend/internal/scheduler"
	"github.com/Uvaancovie/nova-prop-backend/internal/worker"
)

func main() {
	dotenvErr := config.LoadDotEnv()
	cfg := config.Load()

	logger.Set(logger.NewLogger(cfg.Env))
	defer logger.Sync()
	if dotenvErr != nil {
		logger.Warn(".env の読み込みに失敗", zap.Error(dotenvErr))
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("アプリケーションの初期化に失敗", zap.Error(err))
	}
	defer a.Close()

	// 請求書再生成ワーカー
	var taskServer *asynq.Server
	if a.InvoiceRetryEnabled() {
		taskServer = queue.NewServer(queue.RedisOpt(&cfg.Redis), cfg.Invoice.WorkerConcurrency, logger.Get())
		mux := asynq.NewServeMux()
		worker.NewInvoiceTaskHandler(a.Invoices).Register(mux)
		if err := taskServer.Start(mux); err != nil {
			logger.Error("請求書ワーカーの起動に失敗", zap.Error(err))
			taskServer = nil
		}
	}

	// 滞在終了予約の完了処理
	sched := scheduler.NewScheduler()
	if cfg.Sweeper.Enabled {
		sweeper := worker.NewCompletionSweeper(a.Reservations, a.Metrics, time.Now)
		sched.Every("completion_sweeper", cfg.Sweeper.Interval, sweeper.Job())
		sched.Start()
		go sweeper.Job()(ctx)
	}

	e := a.Router()
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("サーバー起動", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("スケジューラ停止エラー", zap.Error(err))
	}
	if taskServer != nil {
		taskServer.Shutdown()
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
