package service

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loresmith/loresmith-be/types"
	"github.com/loresmith/loresmith-be/utils"
)

var supportedUploadExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
}

// FileService owns the upload directory. Stored files are never mutated or
// deleted by the pipeline; re-ingesting always reads the original bytes.
type FileService struct {
	uploadDir string
}

func NewFileService(uploadDir string) (*FileService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FileService{uploadDir: uploadDir}, nil
}

// SaveUpload stores a multipart upload and returns the stored path.
func (s *FileService) SaveUpload(file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !supportedUploadExts[ext] {
		return "", fmt.Errorf("%w: %s", types.ErrFormatUnsupported, ext)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	return s.SaveReader(src, file.Filename)
}

// SaveReader stores arbitrary content under a timestamped, sanitized name
// derived from the original filename, so repeated uploads of the same file
// never collide.
func (s *FileService) SaveReader(src io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	filename := utils.SanitizeFilename(fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), ext))

	path := filepath.Join(s.uploadDir, filename)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create stored file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to write stored file: %w", err)
	}
	return path, nil
}

// Open returns the stored file for reading. The path must resolve inside the
// upload directory.
func (s *FileService) Open(path string) (*os.File, error) {
	cleaned := filepath.Clean(path)
	dir := filepath.Clean(s.uploadDir)
	if !strings.HasPrefix(cleaned, dir+string(filepath.Separator)) && cleaned != dir {
		return nil, fmt.Errorf("path %s is outside the upload directory", path)
	}
	return os.Open(cleaned)
}
