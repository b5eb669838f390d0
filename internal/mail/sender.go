// Package mail はメールのキュー投入とSMTP送信を提供する。
package mail

import (
	"context"
	"fmt"
	"math/rand"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/hitoshi/rentman/internal/model"
)

// Sender はメール送信のインターフェース。
// テスト時にモックに差し替え可能。
type Sender interface {
	// Send はメールを1通送信する。
	Send(ctx context.Context, msg *model.EmailMessage) error
}

// SMTPConfig はSMTPサーバーの接続設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender はnet/smtpによるメール送信を行う。
// text/plainとtext/htmlのmultipart/alternativeメッセージを構築する。
type SMTPSender struct {
	config SMTPConfig
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config}
}

// Send はメールを1通送信する。
// SMTPホストが未設定の場合はエラーを返す（キュー側で失敗として記録される）。
func (s *SMTPSender) Send(ctx context.Context, msg *model.EmailMessage) error {
	if s.config.Host == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := s.buildMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := smtp.SendMail(addr, auth, s.config.From, []string{msg.Recipient}, raw); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	return nil
}

// buildMessage はRFC 5322形式のmultipart/alternativeメッセージを構築する。
func (s *SMTPSender) buildMessage(msg *model.EmailMessage) ([]byte, error) {
	boundary := fmt.Sprintf("rentman-%d-%d", time.Now().UnixNano(), rand.Int63())

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	// text/plainパート（HTMLから生成した代替テキスト）
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.TextBody)
	b.WriteString("\r\n")

	// text/htmlパート
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String()), nil
}

// compile-time interface check
var _ Sender = (*SMTPSender)(nil)
