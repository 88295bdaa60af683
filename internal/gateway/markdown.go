// ABOUTME: Markdown rendering for ?format=html responses
// ABOUTME: Uses goldmark with GFM; raw HTML in message content is not passed through

package gateway

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/cool-squad/internal/conversation"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// messageView is a message with its content rendered as HTML.
type messageView struct {
	conversation.Message
	ContentHTML string `json:"content_html"`
}

func (g *Gateway) renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		return "<p>" + html.EscapeString(content) + "</p>"
	}
	return buf.String()
}

func (g *Gateway) renderMessages(msgs []conversation.Message) []messageView {
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView{Message: m, ContentHTML: g.renderMarkdown(m.Content)}
	}
	return out
}
