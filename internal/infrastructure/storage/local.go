package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/invoice"
)

// LocalStore は請求書をローカルディレクトリに保存する
// 一時ファイルに書いてから rename するため、読み手が書きかけのファイルを見ることはない
type LocalStore struct {
	dir string
}

// NewLocalStore はディレクトリを作成して LocalStore を返す
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("請求書ディレクトリの作成に失敗: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir は保存先ディレクトリを返す
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(filename string) (string, error) {
	if !invoice.ValidFilename(filename) {
		return "", invoice.ErrInvalidFilename
	}
	return filepath.Join(s.dir, filename), nil
}

func (s *LocalStore) Put(ctx context.Context, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(filename)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("請求書の書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("請求書の書き込みに失敗: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("請求書の保存に失敗: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, filename string) (io.ReadCloser, error) {
	p, err := s.path(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, invoice.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("請求書の読み込みに失敗: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Exists(_ context.Context, filename string) (bool, error) {
	p, err := s.path(filename)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("請求書の確認に失敗: %w", err)
	}
	return true, nil
}

// MemoryStore はテストや単一プロセス構成向けのメモリ上の保存先
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, filename string, data []byte) error {
	if !invoice.ValidFilename(filename) {
		return invoice.ErrInvalidFilename
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filename] = buf
	return nil
}

func (s *MemoryStore) Open(_ context.Context, filename string) (io.ReadCloser, error) {
	if !invoice.ValidFilename(filename) {
		return nil, invoice.ErrInvalidFilename
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[filename]
	if !ok {
		return nil, invoice.ErrInvoiceNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Exists(_ context.Context, filename string) (bool, error) {
	if !invoice.ValidFilename(filename) {
		return false, invoice.ErrInvalidFilename
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[filename]
	return ok, nil
}

var (
	_ invoice.Store = (*LocalStore)(nil)
	_ invoice.Store = (*MemoryStore)(nil)
)
