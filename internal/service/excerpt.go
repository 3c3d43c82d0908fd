package service

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const defaultExcerptRunes = 280

var (
	excerptMarkdown = goldmark.New()
	excerptPolicy   = bluemonday.UGCPolicy()
)

// RenderExcerpt 截断帖子正文并渲染为经过清洗的 HTML。
func RenderExcerpt(body string, maxRunes int) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if maxRunes <= 0 {
		maxRunes = defaultExcerptRunes
	}
	if utf8.RuneCountInString(body) > maxRunes {
		body = string([]rune(body)[:maxRunes]) + "…"
	}

	var buf bytes.Buffer
	if err := excerptMarkdown.Convert([]byte(body), &buf); err != nil {
		return excerptPolicy.Sanitize(body)
	}
	return strings.TrimSpace(excerptPolicy.Sanitize(buf.String()))
}
