package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/metrics"
)

// ErrSweepInProgress は前回の完了処理がまだ実行中であることを表す
var ErrSweepInProgress = errors.New("完了処理は実行中です")

// ReservationCompleter は滞在終了予約を完了にするインターフェース
type ReservationCompleter interface {
	CompleteElapsedReservations(ctx context.Context, now time.Time) (int, error)
}

// CompletionSweeper はチェックアウト日を過ぎた確定済み予約を完了にするジョブ
type CompletionSweeper struct {
	reservationService ReservationCompleter
	metrics            *metrics.Metrics
	clock              func() time.Time
	running            atomic.Bool
}

// NewCompletionSweeper は新しいスイーパーを作成
func NewCompletionSweeper(rs ReservationCompleter, m *metrics.Metrics, clock func() time.Time) *CompletionSweeper {
	if clock == nil {
		clock = time.Now
	}
	return &CompletionSweeper{
		reservationService: rs,
		metrics:            m,
		clock:              clock,
	}
}

// Run は現在時刻で1回分の完了処理を実行する
func (s *CompletionSweeper) Run(ctx context.Context) (int, error) {
	return s.RunAt(ctx, s.clock())
}

// RunAt は now 時点で1回分の完了処理を実行する
// 前回の実行が終わっていない場合は何もせず ErrSweepInProgress を返す
func (s *CompletionSweeper) RunAt(ctx context.Context, now time.Time) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		logger.Warn("前回の完了処理が実行中のためスキップ")
		return 0, ErrSweepInProgress
	}
	defer s.running.Store(false)

	log := logger.Get()
	log.Debug("滞在終了予約の完了処理開始", zap.Time("now", now))

	start := time.Now()
	count, err := s.reservationService.CompleteElapsedReservations(ctx, now.UTC())
	s.metrics.Sweep(count, err, time.Since(start))
	if err != nil {
		log.Error("滞在終了予約の完了処理失敗", zap.Int("completed", count), zap.Error(err))
		return count, err
	}

	if count > 0 {
		log.Info("滞在終了予約を完了", zap.Int("count", count))
	} else {
		log.Debug("完了対象の予約なし")
	}
	return count, nil
}

// Job はスケジューラに登録するジョブ本体を返す
func (s *CompletionSweeper) Job() func(ctx context.Context) {
	return func(ctx context.Context) {
		_, _ = s.Run(ctx)
	}
}
