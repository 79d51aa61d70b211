package mirror

import (
	"net/url"
	"path"
	"strings"
)

// ObjectPath maps a fetched URL onto the path its content is stored under.
// Directory-style URLs become index.html files, query strings and fragments
// are dropped, and ".." segments can never climb above the mirror root.
func ObjectPath(u *url.URL, contentType string) string {
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	} else if isHTML(contentType) && path.Ext(p) == "" {
		p += "/index.html"
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}
