// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt holds the texts sent to the chat model: the system
// instruction that fixes the SKKN structure, the opening message built from
// the author's details, and the one-shot suggestion and outline requests.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/skkn-master/pkg/types"
)

// SystemInstruction frames the whole conversation: the expert persona, the
// six-part SKKN structure, and the rule that each part is written only when
// asked for.
//
//go:embed system.md
var SystemInstruction string

// DefaultAuthor is used when no author name is configured.
const DefaultAuthor = "VANHA"

// initialTmpl is the first message of a session.
var initialTmpl = template.Must(template.New("initial").Parse(`Chào chuyên gia. Tôi là giáo viên {{.Author}}, cần viết SKKN.
Thông tin:
- Đề tài: {{.Info.Topic}}
- Môn học: {{.Info.Subject}}
- Khối: {{.Info.Grade}}
- Trường: {{.Info.School}}
- Bộ sách: {{.Info.Textbook}}
Hãy bắt đầu Dàn ý chi tiết cho tôi.`))

// Initial renders the opening message embedding every UserInfo field.
func Initial(info types.UserInfo, author string) (string, error) {
	if strings.TrimSpace(author) == "" {
		author = DefaultAuthor
	}
	var buf bytes.Buffer
	err := initialTmpl.Execute(&buf, struct {
		Author string
		Info   types.UserInfo
	}{Author: author, Info: trimmed(info)})
	if err != nil {
		return "", fmt.Errorf("rendering initial prompt: %w", err)
	}
	return buf.String(), nil
}

var outlineTmpl = template.Must(template.New("outline").Parse(`Hãy tạo sườn nội dung cho sáng kiến kinh nghiệm:
Tiêu đề: {{.Title}}
Môn: {{.Subject}}
Khối: {{.Grade}}`))

// Outline renders the request for a structured outline of one initiative.
func Outline(title, subject, grade string) (string, error) {
	var buf bytes.Buffer
	err := outlineTmpl.Execute(&buf, struct{ Title, Subject, Grade string }{
		Title:   strings.TrimSpace(title),
		Subject: strings.TrimSpace(subject),
		Grade:   strings.TrimSpace(grade),
	})
	if err != nil {
		return "", fmt.Errorf("rendering outline prompt: %w", err)
	}
	return buf.String(), nil
}

// Suggestion frames task with the passage it refers to. An empty passage is
// left out.
func Suggestion(task, passage string) string {
	task = strings.TrimSpace(task)
	if strings.TrimSpace(passage) == "" {
		return "Task: " + task
	}
	return "Context: " + passage + "\n\nTask: " + task
}

func trimmed(u types.UserInfo) types.UserInfo {
	return types.UserInfo{
		Topic:    strings.TrimSpace(u.Topic),
		Subject:  strings.TrimSpace(u.Subject),
		Grade:    strings.TrimSpace(u.Grade),
		School:   strings.TrimSpace(u.School),
		Textbook: strings.TrimSpace(u.Textbook),
	}
}

// LoadUserInfo reads a UserInfo from a YAML file:
//
//	topic: Một số giải pháp nâng cao chất lượng dạy học...
//	subject: Toán
//	grade: "10"
//	school: THPT ...
//	textbook: Kết nối tri thức
//
// Missing fields are not an error here; the sequencer rejects them at start.
func LoadUserInfo(path string) (types.UserInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.UserInfo{}, fmt.Errorf("reading user info: %w", err)
	}
	var info types.UserInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return types.UserInfo{}, fmt.Errorf("parsing user info: %w", err)
	}
	return info, nil
}
