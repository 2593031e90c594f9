package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// CalendarCache はカレンダー表示用の予約一覧をキャッシュする
// スコープ（不動産業者ID）ごとの世代番号をキーに含め、無効化は世代番号を進めて行う
type CalendarCache struct {
	client *redis.Client
}

// NewCalendarCache は新しいCalendarCacheインスタンスを作成する
func NewCalendarCache(client *redis.Client) *CalendarCache {
	return &CalendarCache{client: client}
}

// Get はキャッシュを取得する。存在しない場合は ErrCacheMiss
func (c *CalendarCache) Get(ctx context.Context, scope, key string) ([]byte, error) {
	gen, err := c.generation(ctx, scope)
	if err != nil {
		return nil, err
	}
	val, err := c.client.Get(ctx, c.entryKey(scope, gen, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// Set はキャッシュを保存する
func (c *CalendarCache) Set(ctx context.Context, scope, key string, data []byte, ttl time.Duration) error {
	gen, err := c.generation(ctx, scope)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.entryKey(scope, gen, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はスコープのキャッシュをすべて無効化する
// 古い世代のエントリは TTL で消える
func (c *CalendarCache) Invalidate(ctx context.Context, scope string) error {
	if err := c.client.Incr(ctx, c.generationKey(scope)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *CalendarCache) generation(ctx context.Context, scope string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(scope)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("キャッシュ世代の取得に失敗: %w", err)
	}
	return gen, nil
}

func (c *CalendarCache) generationKey(scope string) string {
	return fmt.Sprintf("calendar:gen:%s", scope)
}

func (c *CalendarCache) entryKey(scope string, gen int64, key string) string {
	return fmt.Sprintf("calendar:%s:%d:%s", scope, gen, key)
}
