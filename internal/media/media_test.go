package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtotreasure/treasure/internal/imaging"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSaveAndServe(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 0)
	require.NoError(t, err)

	ref, err := s.Save(context.Background(), bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, URLPrefix))
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	_, err = os.Stat(filepath.Join(dir, strings.TrimPrefix(ref, URLPrefix)))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ref, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, URLPrefix, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no directory listing")

	require.NoError(t, s.Delete(ref))
	_, err = os.Stat(filepath.Join(dir, strings.TrimPrefix(ref, URLPrefix)))
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, s.Delete(ref), "deleting twice is fine")
}

func TestSaveRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 0)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), strings.NewReader("hello"))
	assert.ErrorIs(t, err, imaging.ErrUnsupported)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing left behind")
}

func TestSaveRejectsOversized(t *testing.T) {
	s, err := New(t.TempDir(), 16)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), bytes.NewReader(testPNG(t)))
	assert.ErrorIs(t, err, imaging.ErrTooLarge)
}

func TestURL(t *testing.T) {
	tests := []struct {
		ref, base, want string
	}{
		{"/uploads/a.jpg", "http://localhost:5000", "http://localhost:5000/uploads/a.jpg"},
		{"/uploads/a.jpg", "https://example.com/", "https://example.com/uploads/a.jpg"},
		{"uploads/a.jpg", "https://example.com", "https://example.com/uploads/a.jpg"},
		{"https://cdn.example.com/a.jpg", "http://localhost", "https://cdn.example.com/a.jpg"},
		{"", "http://localhost", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URL(tt.ref, tt.base), "URL(%q, %q)", tt.ref, tt.base)
	}
	assert.Equal(t, []string{"http://h/uploads/a.jpg"}, URLs([]string{"/uploads/a.jpg"}, "http://h"))
}

func TestDeleteIgnoresForeignRefs(t *testing.T) {
	s, err := New(t.TempDir(), 0)
	require.NoError(t, err)
	assert.NoError(t, s.Delete("https://cdn.example.com/a.jpg"))
	assert.NoError(t, s.Delete("/uploads/../secret"))
}
