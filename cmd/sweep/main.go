// sweep は滞在終了予約の完了処理を1回だけ実行する
// 外部のスケジューラ（cron, Kubernetes CronJob 等）から呼び出す
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/app"
	"github.com/Uvaancovie/nova-prop-backend/internal/config"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
	"github.com/Uvaancovie/nova-prop-backend/internal/worker"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "対象の予約を表示するだけで状態は変更しない")
	at := flag.String("now", "", "基準時刻 (RFC3339)。省略時は現在時刻")
	timeout := flag.Duration("timeout", 5*time.Minute, "処理全体のタイムアウト")
	flag.Parse()

	os.Exit(run(*dryRun, *at, *timeout))
}

func run(dryRun bool, at string, timeout time.Duration) int {
	_ = config.LoadDotEnv()
	cfg := config.Load()
	logger.Set(logger.NewLogger(cfg.Env))
	defer logger.Sync()

	now := time.Now().UTC()
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "-now の形式が不正です: %v\n", err)
			return 2
		}
		now = t.UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 完了処理では請求書を生成しないため再生成キューは不要
	cfg.Invoice.RetryEnabled = false
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("初期化に失敗", zap.Error(err))
		return 1
	}
	defer a.Close()

	if dryRun {
		list, err := a.Reservations.ElapsedReservations(ctx, now)
		if err != nil {
			logger.Error("対象予約の取得に失敗", zap.Error(err))
			return 1
		}
		for _, r := range list {
			fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, r.PropertyID,
				r.CheckIn.Format("2006-01-02"), r.CheckOut.Format("2006-01-02"))
		}
		logger.Info("dry-run: 完了対象", zap.Int("count", len(list)), zap.Time("now", now))
		return 0
	}

	count, err := worker.NewCompletionSweeper(a.Reservations, a.Metrics, nil).RunAt(ctx, now)
	if err != nil {
		return 1
	}
	fmt.Printf("completed=%d\n", count)
	return 0
}
