package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

// Storage сохраняет единственную запись сессии.
type Storage interface {
	Load(ctx context.Context) (model.Session, error)
	Save(ctx context.Context, s model.Session) error
}

// FileStorage хранит сессию в JSON-файле. Запись атомарна: временный файл и rename.
type FileStorage struct {
	path string
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage создаёт хранилище сессии по указанному пути.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load читает сессию. Отсутствующий файл означает пустую сессию.
func (f *FileStorage) Load(ctx context.Context) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return model.EmptySession(), err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.EmptySession(), nil
		}
		return model.EmptySession(), fmt.Errorf("read session: %w", err)
	}

	s := model.EmptySession()
	if err := json.Unmarshal(data, &s); err != nil {
		return model.EmptySession(), fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

// Save записывает сессию целиком.
func (f *FileStorage) Save(ctx context.Context, s model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
