// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/skkn-master/pkg/types"
)

func TestSystemInstructionEmbedded(t *testing.T) {
	assert.Contains(t, SystemInstruction, "PHẦN III: THỰC TRẠNG")
	assert.Contains(t, SystemInstruction, "Markdown Table")
}

func TestInitial(t *testing.T) {
	info := types.UserInfo{Topic: "X", Subject: "Toán", Grade: "10", School: "Y", Textbook: "Z"}

	msg, err := Initial(info, "Lan")
	require.NoError(t, err)
	assert.Contains(t, msg, "Tôi là giáo viên Lan")
	assert.Contains(t, msg, "- Đề tài: X\n")
	assert.Contains(t, msg, "- Môn học: Toán\n")
	assert.Contains(t, msg, "- Khối: 10\n")
	assert.Contains(t, msg, "- Trường: Y\n")
	assert.Contains(t, msg, "- Bộ sách: Z\n")
	assert.Contains(t, msg, "Dàn ý chi tiết")
}

func TestInitialDefaultsAuthorAndTrims(t *testing.T) {
	info := types.UserInfo{Topic: "  X  ", Subject: "Toán", Grade: "10", School: "Y", Textbook: "Z\n"}
	msg, err := Initial(info, " ")
	require.NoError(t, err)
	assert.Contains(t, msg, "giáo viên "+DefaultAuthor)
	assert.Contains(t, msg, "- Đề tài: X\n")
	assert.Contains(t, msg, "- Bộ sách: Z\n")
}

func TestInitialDoesNotEscapeHTML(t *testing.T) {
	info := types.UserInfo{Topic: "A & B <C>", Subject: "s", Grade: "g", School: "h", Textbook: "t"}
	msg, err := Initial(info, "")
	require.NoError(t, err)
	assert.Contains(t, msg, "A & B <C>")
}

func TestLoadUserInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "info.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`topic: Dạy học phân hóa
subject: Toán
grade: "10"
school: THPT Nguyễn Du
textbook: Kết nối tri thức
`), 0o644))

	info, err := LoadUserInfo(path)
	require.NoError(t, err)
	assert.Equal(t, types.UserInfo{
		Topic:    "Dạy học phân hóa",
		Subject:  "Toán",
		Grade:    "10",
		School:   "THPT Nguyễn Du",
		Textbook: "Kết nối tri thức",
	}, info)
}

func TestLoadUserInfoErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadUserInfo(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading user info")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("topic: [unclosed"), 0o644))
	_, err = LoadUserInfo(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing user info")
}

func TestOutline(t *testing.T) {
	msg, err := Outline(" Dạy học dự án ", "Toán", "10")
	require.NoError(t, err)
	assert.Equal(t, "Hãy tạo sườn nội dung cho sáng kiến kinh nghiệm:\nTiêu đề: Dạy học dự án\nMôn: Toán\nKhối: 10", msg)
}

func TestSuggestion(t *testing.T) {
	assert.Equal(t, "Context: Phần III...\n\nTask: Viết lại đoạn này", Suggestion(" Viết lại đoạn này ", "Phần III..."))
	assert.Equal(t, "Task: Gợi ý tên đề tài", Suggestion("Gợi ý tên đề tài", "  "))
}
