package storage

import (
	"context"
	"io"

	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/breaker"
)

// Storage defines the interface for avatar file storage.
type Storage interface {
	// Upload stores a file and returns the result with key and URL.
	Upload(ctx context.Context, input *UploadInput) (*UploadResult, error)

	// Delete removes a file by its key.
	Delete(ctx context.Context, key string) error
}

// UploadInput holds the parameters for uploading a file.
type UploadInput struct {
	Key         string
	ContentType string
	Size        int64
	Data        io.Reader
}

// UploadResult holds the result of a successful upload.
type UploadResult struct {
	Key string
	URL string
}

type breakerStorage struct {
	next Storage
	cb   *breaker.Breaker
}

// WithBreaker routes every call to next through cb, so an unreachable object
// store fails fast once the breaker opens.
func WithBreaker(next Storage, cb *breaker.Breaker) Storage {
	return &breakerStorage{next: next, cb: cb}
}

func (s *breakerStorage) Upload(ctx context.Context, input *UploadInput) (*UploadResult, error) {
	var res *UploadResult
	err := s.cb.Run(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.next.Upload(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *breakerStorage) Delete(ctx context.Context, key string) error {
	return s.cb.Run(ctx, func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})
}
