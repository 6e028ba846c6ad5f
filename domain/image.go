package domain

import (
	"io"
	"path"
)

const (
	// UploadsDir is the directory inside the public storage directory holding uploaded images.
	UploadsDir = "uploads"
	// MaxUploadSize determines the maximum filesize of an image to be uploaded.
	MaxUploadSize int64 = 5 << 20 // 5 Megabyte
)

// Image represents an uploaded image. Images are stored as files below the public
// storage directory and have no dedicated table in the database; a Post only keeps
// the Path of its image. File contains the data to be stored, Filename the name the
// client sent it with. Extension, ContentType and Path are filled in during validation.
type Image struct {
	File        io.ReadSeeker `json:"-"`
	Filename    string        `json:"-"`
	Extension   string        `json:"-"`
	ContentType string        `json:"-"`
	Path        string        `json:"path"`
}

// ImageService is a set of methods to store and remove image files.
type ImageService interface {
	Create(img *Image) error
	Delete(relPath string) error
}

// RelativePath returns the path of a stored image relative to the public directory.
func RelativePath(filename string) string {
	return path.Join(UploadsDir, filename)
}
