// Package uploads stores client-provided image files on disk: poster
// frames, thumbnails, test cards. Files get opaque uuid names; the
// original name survives only in its extension.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avolkhov/relaynode/internal/events"
)

// ErrNotFound is returned when the named upload does not exist.
var ErrNotFound = errors.New("upload not found")

// ErrInvalidName is returned for names that could escape the uploads
// directory or were never issued by the store.
var ErrInvalidName = errors.New("invalid upload name")

// ErrUnsupportedType is returned when the uploaded content is not an image.
var ErrUnsupportedType = errors.New("unsupported content type")

// ErrTooLarge is returned when the upload exceeds the size limit.
var ErrTooLarge = errors.New("upload too large")

// FileInfo describes one stored upload.
type FileInfo struct {
	Name     string    `json:"name" example:"b5c7f1ce-08fd-4f0a-9e0b-1af9c6d7f0d2.png" doc:"Stored file name"`
	Size     int64     `json:"size" example:"48213" doc:"File size in bytes"`
	Modified time.Time `json:"modified" doc:"Last modification time"`
}

// Store manages the uploads directory. All methods are safe for
// concurrent use; the filesystem is the only shared state.
type Store struct {
	dir      string
	maxBytes int64
	bus      *events.Bus
	logger   *slog.Logger
}

// NewStore bootstraps the uploads directory and returns a store over
// it. The directory is created if missing.
func NewStore(dir string, maxBytes int64, bus *events.Bus, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory %q: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, bus: bus, logger: logger}, nil
}

// Dir returns the uploads directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Save validates and stores one uploaded file, returning its assigned
// name. originalName contributes only its extension.
func (s *Store) Save(r io.Reader, originalName string) (FileInfo, error) {
	// Sniff the content type from the first 512 bytes.
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileInfo{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	name := uuid.NewString() + normalizeExt(originalName)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return FileInfo{}, fmt.Errorf("create upload file: %w", err)
	}

	written, err := s.copyLimited(f, head, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return FileInfo{}, err
	}

	info := FileInfo{Name: name, Size: written, Modified: time.Now()}
	s.logger.Info("Upload stored", "name", name, "size", written, "content_type", contentType)
	if s.bus != nil {
		s.bus.Publish(events.UploadStoredEvent{
			Name:      name,
			Size:      written,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return info, nil
}

// copyLimited writes the sniffed head plus the remaining body,
// enforcing the size limit across both.
func (s *Store) copyLimited(f *os.File, head []byte, r io.Reader) (int64, error) {
	if s.maxBytes > 0 && int64(len(head)) > s.maxBytes {
		return 0, ErrTooLarge
	}
	if _, err := f.Write(head); err != nil {
		return 0, fmt.Errorf("write upload: %w", err)
	}

	written := int64(len(head))
	var body io.Reader = r
	if s.maxBytes > 0 {
		// One extra byte so exceeding the limit is detectable.
		body = io.LimitReader(r, s.maxBytes-written+1)
	}
	n, err := io.Copy(f, body)
	if err != nil {
		return 0, fmt.Errorf("write upload: %w", err)
	}
	written += n
	if s.maxBytes > 0 && written > s.maxBytes {
		return 0, ErrTooLarge
	}
	return written, nil
}

// List returns all stored uploads, newest first.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads directory: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:     entry.Name(),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

// Delete removes one stored upload by name.
func (s *Store) Delete(name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete upload: %w", err)
	}

	s.logger.Info("Upload deleted", "name", name)
	if s.bus != nil {
		s.bus.Publish(events.UploadDeletedEvent{
			Name:      name,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// validName accepts only names the store itself could have issued:
// a single path element, no separators, no dot-dot.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

// normalizeExt returns a safe lowercase extension from the client
// file name, or empty when it has none.
func normalizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return ext
	default:
		return ""
	}
}
