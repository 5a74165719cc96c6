// Package storage keeps uploaded documents on the local filesystem.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"procurement/internal/apperror"
	"procurement/internal/model"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// AllowedTypes are the document formats accepted for proformas and receipts.
var AllowedTypes = []string{"application/pdf", "image/png", "image/jpeg", "image/webp"}

var ErrInvalidKey = errors.New("storage: invalid key")

type FileStore struct {
	root     string
	maxBytes int64
	now      func() time.Time
}

func NewFileStore(root string, maxBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &FileStore{root: root, maxBytes: maxBytes, now: time.Now}, nil
}

// Inspect reads and validates an upload without storing it and reports the detected content type.
func (s *FileStore) Inspect(r io.Reader) ([]byte, string, error) {
	data, mt, err := s.inspect(r)
	if err != nil {
		return nil, "", err
	}
	return data, mt.String(), nil
}

func (s *FileStore) inspect(r io.Reader) ([]byte, *mimetype.MIME, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, apperror.ErrEmptyFile
	}
	if int64(len(data)) > s.maxBytes {
		return nil, nil, apperror.Wrap(apperror.ErrFileTooLarge, "limit is %d bytes", s.maxBytes)
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), AllowedTypes...) {
		return nil, nil, apperror.Wrap(apperror.ErrUnsupportedFile, "detected %s", mt.String())
	}
	return data, mt, nil
}

// Save validates and stores an upload, returning a reference to it.
func (s *FileStore) Save(ctx context.Context, filename string, r io.Reader) (*model.DocumentRef, error) {
	data, mt, err := s.inspect(r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(s.root, key), data, 0o640); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", key, err)
	}

	return &model.DocumentRef{
		Key:         key,
		Filename:    filepath.Base(filename),
		ContentType: mt.String(),
		Size:        int64(len(data)),
		Digest:      Digest(data),
		UploadedAt:  s.now().UTC(),
	}, nil
}

func (s *FileStore) Read(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes a stored document. Missing documents are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, key), nil
}

// Digest is the hex blake2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader hashes a stream.
func DigestReader(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
