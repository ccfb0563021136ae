// Package staging holds uploaded images until an analysis takes them.
//
// Every staged image is addressed by its key, which doubles as the ownership
// token handed to the uploader. Take claims a key atomically within the
// process, so two analyses never select or delete the same artifact. The
// returned Lease must be released on every exit path.
package staging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plantcare/internal/domain"
	"plantcare/internal/repository"
)

type Store struct {
	repo repository.StagingRepository
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewStore(repo repository.StagingRepository, log *zap.Logger) *Store {
	return &Store{
		repo:    repo,
		log:     log,
		now:     time.Now,
		claimed: make(map[string]struct{}),
	}
}

// NewKey builds a time-derived, extension-preserving key. The uuid suffix
// keeps uploads within the same millisecond apart.
func NewKey(now time.Time, ext string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.New().String()[:8] + ext
}

// CreatedAt recovers the upload time encoded in a key.
func CreatedAt(key string) (time.Time, bool) {
	prefix, _, ok := strings.Cut(key, "-")
	if !ok {
		prefix = strings.TrimSuffix(key, filepath.Ext(key))
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (s *Store) Put(ctx context.Context, data []byte, ext string) (*domain.StagedImage, error) {
	now := s.now()
	key := NewKey(now, ext)
	contentType := http.DetectContentType(data)

	path, err := s.repo.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, domain.NewStorageError("Failed to store image", err)
	}

	return &domain.StagedImage{
		Filename:    key,
		Ext:         ext,
		StoragePath: path,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   now,
	}, nil
}

// ListCandidates returns unclaimed keys whose extension matches one of exts
// case-insensitively, oldest first.
func (s *Store) ListCandidates(ctx context.Context, exts []string) ([]string, error) {
	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, domain.NewStorageError("Failed to list staged images", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, key := range keys {
		if _, busy := s.claimed[key]; busy {
			continue
		}
		if hasExt(key, exts) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasExt(key string, exts []string) bool {
	ext := filepath.Ext(key)
	for _, allowed := range exts {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

func (s *Store) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.claimed[key]; busy {
		return false
	}
	s.claimed[key] = struct{}{}
	return true
}

func (s *Store) unclaim(key string) {
	s.mu.Lock()
	delete(s.claimed, key)
	s.mu.Unlock()
}

// Take claims key and loads its bytes. A missing or already claimed key is
// a NotFound error.
func (s *Store) Take(ctx context.Context, key string) (*Lease, error) {
	if !s.claim(key) {
		return nil, domain.NewNotFoundError("Image already being analyzed", fmt.Errorf("%s: %w", key, domain.ErrNotFound))
	}

	data, err := s.repo.Get(ctx, key)
	if err != nil {
		s.unclaim(key)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewNotFoundError("Staged image not found", err)
		}
		return nil, domain.NewStorageError("Failed to read staged image", err)
	}

	img := &domain.StagedImage{
		Filename:    key,
		Ext:         filepath.Ext(key),
		ContentType: http.DetectContentType(data),
		Size:        int64(len(data)),
		Bytes:       data,
	}
	if ts, ok := CreatedAt(key); ok {
		img.CreatedAt = ts
	}

	return &Lease{store: s, Image: img}, nil
}

// TakeFirst claims the oldest candidate matching exts. Candidates that
// vanish between listing and claiming are skipped.
func (s *Store) TakeFirst(ctx context.Context, exts []string) (*Lease, error) {
	keys, err := s.ListCandidates(ctx, exts)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		lease, err := s.Take(ctx, key)
		if err == nil {
			return lease, nil
		}
		if domain.KindOf(err) != domain.KindNotFound {
			return nil, err
		}
		s.log.Debug("Candidate taken concurrently", zap.String("key", key))
	}

	return nil, domain.NewNotFoundError(noCandidatesMessage(exts), domain.ErrNotFound)
}

func noCandidatesMessage(exts []string) string {
	names := make([]string, len(exts))
	for i, ext := range exts {
		names[i] = "." + strings.TrimPrefix(ext, ".")
	}
	return "No " + strings.Join(names, " or ") + " files found in staging area"
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewNotFoundError("Staged image not found", err)
		}
		return domain.NewStorageError("Failed to delete staged image", err)
	}
	return nil
}

// Lease is exclusive ownership of one staged image.
type Lease struct {
	store *Store
	Image *domain.StagedImage

	once sync.Once
	err  error
}

// Release deletes the staged image and drops the claim. Subsequent calls
// return the first result. The claim is dropped even if deletion fails so
// the artifact can be retried.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		key := l.Image.Filename
		defer l.store.unclaim(key)

		// Cleanup must run even when the request context is already done.
		ctx = context.WithoutCancel(ctx)
		if err := l.store.Delete(ctx, key); err != nil {
			l.err = err
			l.store.log.Warn("Failed to release staged image",
				zap.String("key", key),
				zap.Error(err))
			return
		}
		l.store.log.Debug("Staged image released", zap.String("key", key))
	})
	return l.err
}
