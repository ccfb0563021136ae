package repository

import "context"

// StagingRepository stores staged images by key. Missing keys are reported
// as domain.ErrNotFound by Get and Delete.
type StagingRepository interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}
