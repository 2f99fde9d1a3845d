package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/utils"
)

var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"webp": {},
	"gif":  {},
}

// IsAllowed reports whether filename carries an accepted image extension.
func IsAllowed(filename string) bool {
	ext, ok := extension(filename)
	if !ok {
		return false
	}
	_, ok = allowedExtensions[ext]
	return ok
}

func extension(filename string) (string, bool) {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return "", false
	}
	return strings.ToLower(filename[i+1:]), true
}

// UploadService stores photo files under the upload directory.
type UploadService struct {
	dir        string
	thumbDir   string
	thumbWidth int
}

// NewUploadService returns an UploadService for the configured directories.
func NewUploadService(cfg config.AppConfig) *UploadService {
	return &UploadService{dir: cfg.UploadDir, thumbDir: cfg.ThumbDir(), thumbWidth: cfg.ThumbnailWidth}
}

// EnsureDirs creates the upload and thumbnail directories.
func (u *UploadService) EnsureDirs() error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(u.thumbDir, 0o755)
}

// Dir is the directory originals are written to.
func (u *UploadService) Dir() string { return u.dir }

// ThumbDir is the directory thumbnails are written to.
func (u *UploadService) ThumbDir() string { return u.thumbDir }

// HasThumb reports whether a thumbnail exists for a stored file.
func (u *UploadService) HasThumb(name string) bool {
	st, err := os.Stat(filepath.Join(u.thumbDir, filepath.Base(name)))
	return err == nil && !st.IsDir()
}

// SaveUploads writes every acceptable file under a fresh random name and returns the stored
// names in input order. Rejected files produce a warning each. err is only set on an I/O
// failure; names stored before the failure are still returned.
func (u *UploadService) SaveUploads(files []*multipart.FileHeader) (saved []string, warnings []string, err error) {
	for _, fh := range files {
		if fh == nil || fh.Filename == "" {
			continue
		}
		if !IsAllowed(fh.Filename) {
			warnings = append(warnings, "Unsupported file type: "+fh.Filename)
			continue
		}
		ext, _ := extension(fh.Filename)
		token, err := randomHex(16)
		if err != nil {
			return saved, warnings, err
		}
		name := token + "." + ext
		if err := u.writeFile(fh, name); err != nil {
			return saved, warnings, fmt.Errorf("save upload %q: %w", fh.Filename, err)
		}
		u.makeThumbnail(name)
		saved = append(saved, name)
	}
	return saved, warnings, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random name: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (u *UploadService) writeFile(fh *multipart.FileHeader, name string) error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return err
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(u.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(dst.Name())
		return err
	}
	return dst.Close()
}

// makeThumbnail is best effort: files that do not decode as images simply get none.
func (u *UploadService) makeThumbnail(name string) {
	if u.thumbWidth <= 0 {
		return
	}
	img, err := imaging.Open(filepath.Join(u.dir, name), imaging.AutoOrientation(true))
	if err != nil {
		utils.Sugar.Debugf("no thumbnail for %s: %v", name, err)
		return
	}
	if img.Bounds().Dx() > u.thumbWidth {
		img = imaging.Resize(img, u.thumbWidth, 0, imaging.Lanczos)
	}
	if err := os.MkdirAll(u.thumbDir, 0o755); err != nil {
		return
	}
	if err := imaging.Save(img, filepath.Join(u.thumbDir, name)); err != nil {
		utils.Sugar.Debugf("thumbnail save failed for %s: %v", name, err)
	}
}

// RemoveFiles deletes stored originals and their thumbnails. Errors are ignored.
func (u *UploadService) RemoveFiles(names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		n = filepath.Base(n)
		removeQuietly(filepath.Join(u.dir, n))
		removeQuietly(filepath.Join(u.thumbDir, n))
	}
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
