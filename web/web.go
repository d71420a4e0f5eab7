// Package web carries the HTML templates and static assets compiled into the binary.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var content embed.FS

func Templates() fs.FS {
	sub, _ := fs.Sub(content, "templates")
	return sub
}

func Static() fs.FS {
	sub, _ := fs.Sub(content, "static")
	return sub
}
