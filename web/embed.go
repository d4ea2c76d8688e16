// Package web holds the static landing page served at "/".
package web

import "embed"

// Content holds the embedded landing page.
//
//go:embed index.html
var Content embed.FS
