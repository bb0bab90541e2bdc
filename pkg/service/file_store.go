package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/choraleia/parlance/pkg/db"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadURLPrefix is the public path under which stored uploads are served.
const UploadURLPrefix = "/api/uploads/"

// FileStore keeps uploaded bytes on disk and their records in the database.
type FileStore interface {
	Save(ctx context.Context, sessionID string, data []byte, originalName, mimeType string) (*db.UploadedFile, error)
	Get(ctx context.Context, id uint) (*db.UploadedFile, error)
	GetByFilename(ctx context.Context, filename string) (*db.UploadedFile, error)
	ListBySession(ctx context.Context, sessionID string) ([]db.UploadedFile, error)
	Delete(ctx context.Context, id uint) error
	Path(f *db.UploadedFile) string
}

type DiskFileStore struct {
	db  *gorm.DB
	dir string
}

func NewDiskFileStore(database *gorm.DB, dir string) (*DiskFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &DiskFileStore{db: database, dir: dir}, nil
}

// Save writes data under a fresh unique name and records it for sessionID.
// An empty mimeType is sniffed from the content.
func (s *DiskFileStore) Save(ctx context.Context, sessionID string, data []byte, originalName, mimeType string) (*db.UploadedFile, error) {
	originalName = filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if originalName == "." || originalName == "/" || originalName == "" {
		originalName = "upload"
	}

	detected := mimetype.Detect(data)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detected.String()
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = detected.Extension()
	}

	filename := uuid.New().String() + ext
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	rec := &db.UploadedFile{
		SessionID:        sessionID,
		Filename:         filename,
		OriginalFilename: originalName,
		FileURL:          UploadURLPrefix + filename,
		MimeType:         mimeType,
		Size:             int64(len(data)),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}
	return rec, nil
}

func (s *DiskFileStore) Get(ctx context.Context, id uint) (*db.UploadedFile, error) {
	var f db.UploadedFile
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

func (s *DiskFileStore) GetByFilename(ctx context.Context, filename string) (*db.UploadedFile, error) {
	var f db.UploadedFile
	if err := s.db.WithContext(ctx).First(&f, "filename = ?", filename).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

func (s *DiskFileStore) ListBySession(ctx context.Context, sessionID string) ([]db.UploadedFile, error) {
	var files []db.UploadedFile
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Delete removes the record and, if still present, the stored bytes.
func (s *DiskFileStore) Delete(ctx context.Context, id uint) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&db.UploadedFile{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if err := os.Remove(s.Path(f)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *DiskFileStore) Path(f *db.UploadedFile) string {
	return filepath.Join(s.dir, filepath.Base(f.Filename))
}
