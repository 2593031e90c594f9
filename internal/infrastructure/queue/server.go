package queue

import (
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NewServer は請求書再生成タスクを処理する asynq サーバーを作成する
func NewServer(opt asynq.RedisClientOpt, concurrency int, log *zap.Logger) *asynq.Server {
	if concurrency < 1 {
		concurrency = 1
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Logger:      log.Sugar(),
		LogLevel:    asynq.InfoLevel,
	})
}

var _ asynq.Logger = (*zap.SugaredLogger)(nil)
