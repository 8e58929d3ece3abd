// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders the accumulated markdown document as an HTML file
// that Microsoft Word opens as a .doc.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// ContentType is the MIME type of exported documents.
const ContentType = "application/vnd.ms-word"

const (
	DefaultPrefix = "SKKN"
	DefaultAuthor = "VANHA"
)

// Options controls the envelope and the file name.
type Options struct {
	// Author appears in the attribution line and the file name.
	Author string

	// Prefix starts the file name.
	Prefix string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Author) == "" {
		o.Author = DefaultAuthor
	}
	if strings.TrimSpace(o.Prefix) == "" {
		o.Prefix = DefaultPrefix
	}
	return o
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

var envelope = template.Must(template.New("doc").Parse(`<html xmlns:o='urn:schemas-microsoft-com:office:office' xmlns:w='urn:schemas-microsoft-com:office:word' xmlns='http://www.w3.org/TR/REC-html40'>
<head><meta charset='utf-8'><style>body { font-family: 'Times New Roman'; padding: 2cm; } table { border-collapse: collapse; } td, th { border: 1px solid #000; padding: 4px; }</style></head>
<body>
<div style="text-align: right; font-style: italic; color: #666;">Người thực hiện: {{.Author}}</div>
{{.Body}}
</body></html>
`))

// Render converts markdown to HTML and wraps it in the Word envelope.
// Markdown that does not parse as structure is emitted as paragraphs.
func Render(markdown string, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var out bytes.Buffer
	err := envelope.Execute(&out, struct {
		Author string
		Body   template.HTML
	}{opts.Author, template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("rendering document: %w", err)
	}
	return out.Bytes(), nil
}

// FileName returns <prefix>_<author>_<year>.doc.
func FileName(prefix, author string, year int) string {
	o := Options{Author: author, Prefix: prefix}.withDefaults()
	return o.Prefix + "_" + sanitize(o.Author) + "_" + strconv.Itoa(year) + ".doc"
}

// sanitize keeps the author usable as a file name component.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}

// WriteFile renders markdown into dir, named for the year of now, and
// returns the file path. The directory is created if needed.
func WriteFile(dir, markdown string, opts Options, now time.Time) (string, error) {
	data, err := Render(markdown, opts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(opts.Prefix, opts.Author, now.Year()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return path, nil
}
