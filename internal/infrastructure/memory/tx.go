package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/transaction"
)

var errInvalidTx = errors.New("メモリストアのトランザクションではありません")

// keyedMutex はキーごとの排他ロック
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Tx はメモリストアのトランザクション
// 書き込みは即時に反映し、Rollback 時に取り消し処理を逆順に実行する
// 取得したロックは Commit か Rollback まで保持する
type Tx struct {
	mu   sync.Mutex
	held map[string]*sync.Mutex
	undo []func()
	done bool
}

func (t *Tx) lock(ctx context.Context, keys *keyedMutex, key string) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return errTxDone
	}
	if _, ok := t.held[key]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	m := keys.get(key)
	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-ctx.Done():
		// 後から取得できた場合はすぐに解放する
		go func() {
			<-acquired
			m.Unlock()
		}()
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held == nil {
		t.held = make(map[string]*sync.Mutex)
	}
	t.held[key] = m
	return nil
}

func (t *Tx) onRollback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

// Commit は保持しているロックを解放する
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.finish()
	return nil
}

// Rollback は書き込みを取り消してロックを解放する。終了済みの場合は何もしない
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = nil
	t.undo = nil
	t.done = true
}

var errTxDone = errors.New("トランザクションは既に終了しています")

// TxManager はメモリストア用のトランザクションマネージャー
type TxManager struct{}

// NewTxManager は新しい TxManager を作成する
func NewTxManager() *TxManager {
	return &TxManager{}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{}, nil
}

func unwrap(tx transaction.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errInvalidTx
	}
	return t, nil
}

var _ transaction.Manager = (*TxManager)(nil)
