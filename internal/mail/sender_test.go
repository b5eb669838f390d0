package mail

import (
	"context"
	"strings"
	"testing"

	"github.com/hitoshi/rentman/internal/model"
)

func testMessage() *model.EmailMessage {
	return &model.EmailMessage{
		ID:        "msg-1",
		Recipient: "tenant@example.com",
		Subject:   "家賃請求書（2026-08）",
		HTMLBody:  "<p>今月の家賃は50,000です。</p>",
		TextBody:  "今月の家賃は50,000です。",
	}
}

func TestSend_NoHostConfigured(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{})

	if err := sender.Send(context.Background(), testMessage()); err == nil {
		t.Error("Send() should fail when SMTP host is not configured")
	}
}

func TestSend_CancelledContext(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sender.Send(ctx, testMessage()); err == nil {
		t.Error("Send() should fail for cancelled context")
	}
}

func TestBuildMessage_MultipartStructure(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		From:     "noreply@example.com",
		FromName: "Rentman",
	})

	raw, err := sender.buildMessage(testMessage())
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	content := string(raw)

	// ヘッダー
	if !strings.Contains(content, "To: tenant@example.com\r\n") {
		t.Error("message should contain To header")
	}
	if !strings.Contains(content, "From: ") {
		t.Error("message should contain From header")
	}
	if !strings.Contains(content, "Subject: ") {
		t.Error("message should contain Subject header")
	}
	if !strings.Contains(content, "MIME-Version: 1.0\r\n") {
		t.Error("message should contain MIME-Version header")
	}
	if !strings.Contains(content, "Content-Type: multipart/alternative") {
		t.Error("message should be multipart/alternative")
	}

	// text/plainとtext/htmlの両パート
	if !strings.Contains(content, "Content-Type: text/plain; charset=utf-8") {
		t.Error("message should contain a text/plain part")
	}
	if !strings.Contains(content, "Content-Type: text/html; charset=utf-8") {
		t.Error("message should contain a text/html part")
	}
	if !strings.Contains(content, "<p>今月の家賃は50,000です。</p>") {
		t.Error("message should contain the HTML body")
	}
	if !strings.Contains(content, "今月の家賃は50,000です。\r\n") {
		t.Error("message should contain the plain text body")
	}
}

func TestBuildMessage_NonASCIISubjectEncoded(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "noreply@example.com",
	})

	raw, err := sender.buildMessage(testMessage())
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	content := string(raw)

	// 非ASCII件名はQエンコードされる
	if !strings.Contains(content, "Subject: =?utf-8?q?") {
		t.Error("non-ASCII subject should be Q-encoded")
	}
}
