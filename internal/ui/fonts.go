package ui

import (
	"bytes"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
)

// regularFontData returns the Go regular font bytes.
func regularFontData() *bytes.Reader {
	return bytes.NewReader(goregular.TTF)
}

// mediumFontData returns the Go medium font bytes.
func mediumFontData() *bytes.Reader {
	return bytes.NewReader(gomedium.TTF)
}

// boldFontData returns the Go bold font bytes.
func boldFontData() *bytes.Reader {
	return bytes.NewReader(gobold.TTF)
}
