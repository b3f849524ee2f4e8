// Package upload stores customer documents in object storage.
package upload

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Bucket is where customer documents are kept.
const Bucket = "customer-documents"

var (
	ErrNoCustomer = errors.New("customer id is required")
	ErrEmptyFile  = errors.New("file is empty")
	ErrTooLarge   = errors.New("file exceeds the upload limit")
)

// ObjectStore writes objects and resolves their public URLs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PublicURL(key string) string
}

// Document describes a stored upload.
type Document struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Service uploads documents on behalf of customers.
type Service struct {
	store   ObjectStore
	maxSize int64
	newName func() string
}

// NewService creates a Service. A maxSize of zero disables the size limit.
func NewService(store ObjectStore, maxSize int64) *Service {
	return &Service{store: store, maxSize: maxSize, newName: uuid.NewString}
}

// Upload stores body under <customerID>/<random>.<ext>, the extension
// taken from filename.
func (s *Service) Upload(ctx context.Context, customerID, filename, contentType string, body io.Reader, size int64) (Document, error) {
	if customerID == "" {
		return Document{}, ErrNoCustomer
	}
	if size == 0 {
		return Document{}, ErrEmptyFile
	}
	if s.maxSize > 0 && size > s.maxSize {
		return Document{}, ErrTooLarge
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := ObjectKey(customerID, s.newName(), filename)
	if err := s.store.Put(ctx, key, contentType, body, size); err != nil {
		return Document{}, errors.Wrap(err, "put object")
	}
	return Document{
		Key:         key,
		URL:         s.store.PublicURL(key),
		ContentType: contentType,
		Size:        size,
	}, nil
}

// ObjectKey builds the storage key of an upload.
func ObjectKey(customerID, name, filename string) string {
	key := path.Clean(customerID) + "/" + name
	if ext := Extension(filename); ext != "" {
		key += "." + ext
	}
	return key
}

// Extension returns the lowercase alphanumeric extension of filename.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return ""
	}
	ext := strings.ToLower(filename[i+1:])
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
