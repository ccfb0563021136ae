package service

import (
	"context"
	"sync"

	"plantcare/internal/domain"
)

type mockClassifier struct {
	mu    sync.Mutex
	calls []*domain.StagedImage
	raw   *domain.RawClassification
	err   error
	// onCall runs while the image is still staged.
	onCall func(img *domain.StagedImage)
}

func (m *mockClassifier) Classify(ctx context.Context, img *domain.StagedImage) (*domain.RawClassification, error) {
	m.mu.Lock()
	m.calls = append(m.calls, img)
	m.mu.Unlock()
	if m.onCall != nil {
		m.onCall(img)
	}
	return m.raw, m.err
}

type mockRetriever struct {
	labels []string
	text   string
	err    error
}

func (m *mockRetriever) Retrieve(ctx context.Context, label string) (string, error) {
	m.labels = append(m.labels, label)
	return m.text, m.err
}
