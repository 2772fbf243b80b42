// Package ui provides the embedded web front end.
package ui

import (
	_ "embed"
)

// IndexHTML is the download form served at /.
//
//go:embed index.html
var IndexHTML []byte

// FaviconICO is the site icon.
//
//go:embed bsvdl.ico
var FaviconICO []byte
