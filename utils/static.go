package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultStylesheet = ":root{--bg:#f6f7fb;--ink:#0f172a;--card:#fff;--muted:#64748b;--ring:#eef2ff}" +
	"body{background:var(--bg);color:var(--ink)}" +
	".glass{backdrop-filter:saturate(180%) blur(10px);background:rgba(255,255,255,.7)}" +
	".card{border:1px solid var(--ring)}" +
	".btn{box-shadow:0 1px 0 rgba(0,0,0,.02)}" +
	".brand{letter-spacing:.3px}"

// EnsureStylesheet writes the default styles.css into staticDir unless one already exists.
// An existing file is never overwritten.
func EnsureStylesheet(staticDir string) error {
	if err := os.MkdirAll(staticDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(staticDir, "styles.css")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	}
	if _, err := f.WriteString(defaultStylesheet); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
