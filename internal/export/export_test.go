// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEnvelope(t *testing.T) {
	out, err := Render("# Dàn ý\n\nI. **Mở đầu**", Options{Author: "Lan"})
	require.NoError(t, err)
	doc := string(out)

	assert.Contains(t, doc, "xmlns:o='urn:schemas-microsoft-com:office:office'")
	assert.Contains(t, doc, "xmlns:w='urn:schemas-microsoft-com:office:word'")
	assert.Contains(t, doc, "<meta charset='utf-8'>")
	assert.Contains(t, doc, "font-family: 'Times New Roman'; padding: 2cm;")
	assert.Contains(t, doc, "text-align: right; font-style: italic;")
	assert.Contains(t, doc, "Người thực hiện: Lan")
	assert.Contains(t, doc, "<h1>Dàn ý</h1>")
	assert.Contains(t, doc, "<strong>Mở đầu</strong>")
}

func TestRenderDefaultAuthor(t *testing.T) {
	out, err := Render("text", Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "Người thực hiện: VANHA")
}

func TestRenderEscapesAuthor(t *testing.T) {
	out, err := Render("text", Options{Author: "<b>x</b>"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "Người thực hiện: &lt;b&gt;x&lt;/b&gt;")
}

func TestRenderTables(t *testing.T) {
	src := "| Lớp | Sĩ số |\n|---|---|\n| 10A1 | 42 |\n"
	out, err := Render(src, Options{})
	require.NoError(t, err)
	doc := string(out)
	assert.Contains(t, doc, "<table>")
	assert.Contains(t, doc, "<th>Lớp</th>")
	assert.Contains(t, doc, "<td>10A1</td>")
}

func TestRenderMalformedMarkdown(t *testing.T) {
	out, err := Render("**chưa đóng\n\n| a |\n", Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "**chưa đóng")
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name           string
		prefix, author string
		year           int
		want           string
	}{
		{"defaults", "", "", 2026, "SKKN_VANHA_2026.doc"},
		{"custom", "BaoCao", "Lan", 2025, "BaoCao_Lan_2025.doc"},
		{"unsafe author", "SKKN", "Nguyễn Văn/A", 2026, "SKKN_Nguyễn_Văn_A_2026.doc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FileName(tc.prefix, tc.author, tc.year))
		})
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "exports")
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)

	path, err := WriteFile(dir, "## Phần I", Options{}, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "SKKN_VANHA_2026.doc"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h2>Phần I</h2>")
}
