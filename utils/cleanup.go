package utils

import (
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/fastdiary/fastdiary/models"
)

// SweepOrphanUploads removes files in dir (and their thumbnails in thumbDir) that no Photo row
// references. It runs once at boot and returns the number of files removed.
func SweepOrphanUploads(db *gorm.DB, dir, thumbDir string) (int, error) {
	var names []string
	if err := db.Model(&models.Photo{}).Pluck("filename", &names).Error; err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, it := range items {
		if it.IsDir() {
			continue
		}
		if _, ok := known[it.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, it.Name())); err != nil {
			Sugar.Warnf("orphan sweep could not remove %s: %v", it.Name(), err)
			continue
		}
		_ = os.Remove(filepath.Join(thumbDir, it.Name()))
		removed++
	}
	return removed, nil
}
