package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"plantcare/internal/domain"
)

type fsRepository struct {
	dir string
	log *zap.Logger
}

func NewFSRepository(dir string, log *zap.Logger) (StagingRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}
	return &fsRepository{dir: dir, log: log}, nil
}

func (r *fsRepository) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", fmt.Errorf("invalid key %q: %w", key, domain.ErrNotFound)
	}
	return filepath.Join(r.dir, key), nil
}

func (r *fsRepository) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	p, err := r.path(key)
	if err != nil {
		return "", err
	}

	// Write to a hidden temp name first so List never sees a partial file.
	tmp := filepath.Join(r.dir, "."+key+".part")
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", p, err)
	}

	r.log.Info("Image staged",
		zap.String("path", p),
		zap.Int("size", len(body)),
		zap.String("content_type", contentType))

	return p, nil
}

func (r *fsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := r.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (r *fsRepository) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read staging directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		keys = append(keys, entry.Name())
	}
	return keys, nil
}

func (r *fsRepository) Delete(ctx context.Context, key string) error {
	p, err := r.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	r.log.Info("Staged image removed", zap.String("path", p))
	return nil
}
