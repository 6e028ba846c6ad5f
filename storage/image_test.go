package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posty/domain"
	"posty/errs"
)

var (
	pngHeader  = []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")
	jpegHeader = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF\x00")
)

func newImage(name string, data []byte) *domain.Image {
	return &domain.Image{File: bytes.NewReader(data), Filename: name}
}

func TestImageCreate(t *testing.T) {
	dir := t.TempDir()
	is := NewImageService(dir)

	img := newImage("photo.JPG", jpegHeader)
	require.NoError(t, is.Create(img))

	assert.Equal(t, ".jpeg", img.Extension)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.True(t, strings.HasPrefix(img.Path, "uploads/"))
	assert.True(t, strings.HasSuffix(img.Path, ".jpeg"))

	stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(img.Path)))
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, stored)
}

func TestImageCreateUniqueNames(t *testing.T) {
	is := NewImageService(t.TempDir())
	a, b := newImage("a.png", pngHeader), newImage("a.png", pngHeader)
	require.NoError(t, is.Create(a))
	require.NoError(t, is.Create(b))
	assert.NotEqual(t, a.Path, b.Path)
}

func TestImageCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		img  *domain.Image
	}{
		{"wrong extension", newImage("doc.gif", pngHeader)},
		{"not an image", newImage("fake.png", []byte("hello, world"))},
		{"extension mismatch", newImage("photo.png", jpegHeader)},
		{"too large", newImage("big.png", append(append([]byte{}, pngHeader...), make([]byte, domain.MaxUploadSize)...))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			err := NewImageService(dir).Create(tt.img)
			assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))

			_, statErr := os.Stat(filepath.Join(dir, domain.UploadsDir))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

// failingReader yields its data, then fails instead of reporting EOF.
type failingReader struct {
	r *bytes.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.r.Len() == 0 {
		return 0, errors.New("connection reset by peer")
	}
	return f.r.Read(p)
}

func (f *failingReader) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func TestImageCreateInterruptedUpload(t *testing.T) {
	dir := t.TempDir()
	fs := &imageFs{publicDir: dir}
	img := &domain.Image{File: &failingReader{r: bytes.NewReader(pngHeader)}, Filename: "broken.png"}

	err := fs.Create(img)
	require.Error(t, err)
	assert.Empty(t, img.Path)

	entries, err := os.ReadDir(filepath.Join(dir, domain.UploadsDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImageDelete(t *testing.T) {
	dir := t.TempDir()
	is := NewImageService(dir)
	img := newImage("a.png", pngHeader)
	require.NoError(t, is.Create(img))

	require.NoError(t, is.Delete(img.Path))
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(img.Path)))
	assert.True(t, os.IsNotExist(err))

	// Deleting twice is fine.
	assert.NoError(t, is.Delete(img.Path))
}

func TestImageDeleteOutsideUploads(t *testing.T) {
	is := NewImageService(t.TempDir())
	assert.Error(t, is.Delete("../secret.txt"))
	assert.Error(t, is.Delete("uploads/../config.json"))
}
