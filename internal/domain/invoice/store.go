package invoice

import (
	"context"
	"io"
)

// Store は請求書ファイルの保存先
// ファイル名は予約IDから決まるため、再生成時は同じ名前で置き換わる
type Store interface {
	// Put は文書を保存する
	Put(ctx context.Context, filename string, data []byte) error
	// Open は保存済みの文書を開く。存在しない場合は ErrInvoiceNotFound
	Open(ctx context.Context, filename string) (io.ReadCloser, error)
	// Exists は文書が保存済みかを返す
	Exists(ctx context.Context, filename string) (bool, error)
}
