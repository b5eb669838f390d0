package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/repository"
	"github.com/hitoshi/rentman/internal/security"
	"golang.org/x/net/html"
)

// QueueService はメールキューへの投入を提供する。
// HTML本文はサニタイズし、text/plain代替パートをHTMLから生成する。
type QueueService struct {
	queueRepo repository.EmailQueueRepository
	sanitizer security.MailSanitizerService
}

// NewQueueService はQueueServiceを生成する。
func NewQueueService(queueRepo repository.EmailQueueRepository, sanitizer security.MailSanitizerService) *QueueService {
	return &QueueService{
		queueRepo: queueRepo,
		sanitizer: sanitizer,
	}
}

// Enqueue はメールをキューに追加する。
// 宛先・件名が空の場合はエラーを返す。
func (s *QueueService) Enqueue(ctx context.Context, recipient, subject, htmlBody string) (*model.EmailMessage, error) {
	if recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}

	sanitized := s.sanitizer.Sanitize(htmlBody)
	now := time.Now()

	msg := &model.EmailMessage{
		ID:            uuid.New().String(),
		Recipient:     recipient,
		Subject:       subject,
		HTMLBody:      sanitized,
		TextBody:      RenderPlainText(sanitized),
		Status:        model.EmailStatusQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.queueRepo.Enqueue(ctx, msg); err != nil {
		return nil, fmt.Errorf("メールのキュー投入に失敗しました: %w", err)
	}

	return msg, nil
}

// RenderPlainText はHTML本文からtext/plain代替テキストを生成する。
// テキストノードを連結し、ブロック要素の境界で改行する。
// パースに失敗した場合はタグを含む元文字列をそのまま返す。
func RenderPlainText(htmlBody string) string {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return htmlBody
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockElement(n.Data) {
			b.WriteString("\n")
		}
	}
	walk(doc)

	// 連続する空行を1つにまとめる
	lines := strings.Split(b.String(), "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			trimmed = ""
		}
		out = append(out, trimmed)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// isBlockElement は改行を挿入すべきブロック要素かを返す。
func isBlockElement(tag string) bool {
	switch tag {
	case "p", "br", "div", "li", "tr", "table", "h1", "h2", "h3", "ul", "ol", "blockquote":
		return true
	}
	return false
}
