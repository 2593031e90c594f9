package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
)

// Scheduler は定期ジョブを管理する
// 同じジョブの実行が重なった場合、後発の実行はスキップされる
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler は UTC で動作するスケジューラを作成する
func NewScheduler() *Scheduler {
	l := cronLogger{log: logger.Get()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel}
}

// Every は interval ごとに job を実行するよう登録する
// job に渡す context は Stop でキャンセルされる
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) cron.EntryID {
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		start := time.Now()
		job(s.ctx)
		logger.Debug("定期ジョブ完了", zap.String("job", name), zap.Duration("duration", time.Since(start)))
	}))
	logger.Info("定期ジョブを登録", zap.String("job", name), zap.Duration("interval", interval))
	return id
}

// Start はスケジューラを開始する
func (s *Scheduler) Start() {
	logger.Info("スケジューラ開始", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop は新しい実行を止め、実行中のジョブの終了を ctx の期限まで待つ
func (s *Scheduler) Stop(ctx context.Context) error {
	logger.Info("スケジューラ停止中...")
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("スケジューラ停止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries は登録済みのジョブを返す
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// cronLogger は cron.Logger を zap に流す
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogger{}
