// Package templates holds the embedded HTML pages.
package templates

import (
	"embed"
	"html/template"
	"net/url"
	"time"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/utils"
)

//go:embed *.html
var files embed.FS

// Load parses every page. extra is merged over the default helpers.
func Load(extra template.FuncMap) (*template.Template, error) {
	funcs := template.FuncMap{
		"date": func(t time.Time) string { return t.Format(config.DateLayout) },
		"longDate": func(t time.Time) string {
			return t.Format("Mon 02 Jan 2006")
		},
		"markdown": func(s *string) template.HTML {
			if s == nil {
				return ""
			}
			return utils.RenderMarkdown(*s)
		},
		"uploadURL": func(name string) string { return "/uploads/" + url.PathEscape(name) },
	}
	for k, v := range extra {
		funcs[k] = v
	}
	return template.New("").Funcs(funcs).ParseFS(files, "*.html")
}
