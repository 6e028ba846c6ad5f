package storage

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"posty/domain"
	"posty/errs"
)

// ImageService stores uploaded images below the public storage directory.
// It implements the domain.ImageService interface.
type ImageService struct {
	imageValidator
}

// imageValidator runs validations on incoming Image data.
// On success, it passes the data on to imageFs.
// Otherwise, it returns the error of the validation that has failed.
type imageValidator struct {
	imageFs
}

// imageFs runs file operations using incoming Image data.
// It assumes that data has been validated.
type imageFs struct {
	publicDir string
}

// NewImageService returns an instance of ImageService that stores
// files inside publicDir.
func NewImageService(publicDir string) *ImageService {
	return &ImageService{
		imageValidator{
			imageFs{
				publicDir: publicDir,
			},
		},
	}
}

var _ domain.ImageService = &ImageService{}

// Create runs validations needed for storing uploaded images in the filesystem.
// On success img.Path holds the stored file's path relative to the public directory.
func (iv *imageValidator) Create(img *domain.Image) error {
	err := runImageValFns(img,
		iv.extensionValid,
		iv.contentTypeValid,
		iv.contentTypeExtensionMatch,
		iv.belowMaxSize,
		iv.fileNameUnique,
	)
	if err != nil {
		return err
	}
	return iv.imageFs.Create(img)
}

type imageValFn func(img *domain.Image) error

func runImageValFns(img *domain.Image, fns ...imageValFn) error {
	for _, fn := range fns {
		if err := fn(img); err != nil {
			return err
		}
	}
	return nil
}

func (iv *imageValidator) belowMaxSize(img *domain.Image) error {
	size, err := img.File.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if err = resetReaderPosition(img); err != nil {
		return err
	}
	if size > domain.MaxUploadSize {
		return errs.Invalid("image",
			"The image field must not be greater than "+strconv.FormatInt(domain.MaxUploadSize>>10, 10)+" kilobytes.")
	}
	return nil
}

// contentTypeValid sniffs the first 512 bytes of the file. Files shorter than that are fine.
func (iv *imageValidator) contentTypeValid(img *domain.Image) error {
	buffer := make([]byte, 512)
	n, err := img.File.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err = resetReaderPosition(img); err != nil {
		return err
	}
	contentType := http.DetectContentType(buffer[:n])
	if contentType != "image/jpeg" && contentType != "image/png" {
		return errs.Invalid("image", "The image field must be a file of type: jpeg, jpg, png.")
	}
	img.ContentType = contentType
	return nil
}

func (iv *imageValidator) contentTypeExtensionMatch(img *domain.Image) error {
	contentType := strings.TrimPrefix(img.ContentType, "image/")
	ext := strings.TrimPrefix(img.Extension, ".")
	if contentType != ext {
		return errs.Invalid("image", "The image field must be a file of type: jpeg, jpg, png.")
	}
	return nil
}

// extensionValid makes sure the file has the extension .jpeg, .jpg or .png.
// .jpg is stored as .jpeg.
func (iv *imageValidator) extensionValid(img *domain.Image) error {
	ext := strings.ToLower(filepath.Ext(img.Filename))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return errs.Invalid("image", "The image field must be a file of type: jpeg, jpg, png.")
	}
	if ext == ".jpg" {
		ext = ".jpeg"
	}
	img.Extension = ext
	return nil
}

func (iv *imageValidator) fileNameUnique(img *domain.Image) error {
	img.Filename = uuid.NewString() + img.Extension
	return nil
}

// resetReaderPosition back to beginning of the file, so that subsequent reads will work.
func resetReaderPosition(img *domain.Image) error {
	_, err := img.File.Seek(0, io.SeekStart)
	return err
}

// Create copies the image data into <publicDir>/uploads/<filename>, creating
// the uploads directory if needed. A partially written file is removed again.
func (fs *imageFs) Create(img *domain.Image) (err error) {
	dir := filepath.Join(fs.publicDir, domain.UploadsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrap(err, "create uploads directory")
	}
	name := filepath.Join(dir, img.Filename)
	dst, err := os.Create(name)
	if err != nil {
		return pkgerrors.Wrap(err, "create image file")
	}
	defer func() {
		if err != nil {
			os.Remove(name)
		}
	}()
	if _, err := io.Copy(dst, img.File); err != nil {
		dst.Close()
		return pkgerrors.Wrap(err, "write image file")
	}
	if err := dst.Close(); err != nil {
		return pkgerrors.Wrap(err, "close image file")
	}
	img.Path = domain.RelativePath(img.Filename)
	return nil
}

// Delete removes a stored image. Paths outside the uploads directory are refused,
// and an already missing file is not an error.
func (fs *imageFs) Delete(relPath string) error {
	clean := path.Clean("/" + relPath)
	if !strings.HasPrefix(clean, "/"+domain.UploadsDir+"/") {
		return errs.Errorf(errs.EINVALID, "Invalid image path.")
	}
	err := os.Remove(filepath.Join(fs.publicDir, filepath.FromSlash(clean)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return pkgerrors.Wrap(err, "remove image file")
	}
	return nil
}
