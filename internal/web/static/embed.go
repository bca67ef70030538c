// Package static embeds the search UI.
package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist
var distFS embed.FS

// GetFileSystem returns an http.FileSystem for the embedded dist directory.
func GetFileSystem() http.FileSystem {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}

// HasIndex returns true if the embedded UI carries an index.html.
func HasIndex() bool {
	_, err := fs.Stat(distFS, "dist/index.html")
	return err == nil
}
