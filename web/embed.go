// Package web embeds the viewer page served at /.
package web

import "embed"

// Content holds the viewer. It follows the SSE document stream with a
// Cesium CzmlDataSource.
//
//go:embed index.html
var Content embed.FS
