// Package media stores processed item photos on disk and turns stored
// references into URLs.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/trashtotreasure/treasure/internal/imaging"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/uploads/"

// Store writes images under a directory.
type Store struct {
	dir      string
	maxBytes int64
}

// New creates a Store rooted at dir, creating the directory if needed.
// maxBytes bounds each upload (imaging.DefaultMaxBytes if <= 0).
func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save processes an uploaded image and stores it, returning its reference
// ("/uploads/<name>.jpg").
func (s *Store) Save(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	result, err := imaging.Process(r, s.maxBytes)
	if err != nil {
		return "", err
	}

	name := uuid.NewString() + ".jpg"
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating media file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(result.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing media file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing media file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("storing media file: %w", err)
	}
	return URLPrefix + name, nil
}

// Delete removes a stored file by reference. Unknown references are ignored.
func (s *Store) Delete(ref string) error {
	name, ok := nameOf(ref)
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting media file: %w", err)
	}
	return nil
}

// Handler serves stored files under URLPrefix. Directory listings are not served.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(strings.TrimSuffix(URLPrefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}))
}

// URL resolves a stored reference against base (scheme and host, such as
// "https://example.com"). Absolute http(s) references are returned unchanged.
func URL(ref, base string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || ref == "" {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return strings.TrimSuffix(base, "/") + ref
}

// URLs resolves every reference in refs.
func URLs(refs []string, base string) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = URL(ref, base)
	}
	return out
}

// nameOf extracts the file name from a stored reference.
func nameOf(ref string) (string, bool) {
	if !strings.HasPrefix(ref, URLPrefix) || strings.Contains(ref, "..") {
		return "", false
	}
	name := path.Base(ref)
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return "", false
	}
	return name, true
}
