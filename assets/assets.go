// Package assets embeds the sources of the preview page served by cmd/server.
package assets

import _ "embed"

var (
	//go:embed index.html.tpl
	IndexTemplate string

	//go:embed style.css
	Style string

	//go:embed script.js
	Script string

	//go:embed favicon.svg
	Favicon []byte
)
