package mail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/rentman/internal/model"
)

// --- モック定義 ---

type mockEmailQueueRepo struct {
	enqueueFn func(ctx context.Context, msg *model.EmailMessage) error
}

func (m *mockEmailQueueRepo) Enqueue(ctx context.Context, msg *model.EmailMessage) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, msg)
	}
	return nil
}

func (m *mockEmailQueueRepo) ClaimBatch(ctx context.Context, limit int) ([]*model.EmailMessage, error) {
	return nil, nil
}

func (m *mockEmailQueueRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return nil
}

func (m *mockEmailQueueRepo) MarkRetry(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	return nil
}

func (m *mockEmailQueueRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return nil
}

func (m *mockEmailQueueRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// passthroughSanitizer は入力をそのまま返すサニタイザー。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(rawHTML string) string { return rawHTML }

// recordingSanitizer は呼び出された入力を記録するサニタイザー。
type recordingSanitizer struct {
	input string
}

func (s *recordingSanitizer) Sanitize(rawHTML string) string {
	s.input = rawHTML
	return "[sanitized]"
}

// --- テスト ---

func TestEnqueue_Success(t *testing.T) {
	var enqueued *model.EmailMessage
	repo := &mockEmailQueueRepo{
		enqueueFn: func(ctx context.Context, msg *model.EmailMessage) error {
			enqueued = msg
			return nil
		},
	}
	svc := NewQueueService(repo, passthroughSanitizer{})

	msg, err := svc.Enqueue(context.Background(), "tenant@example.com", "家賃請求書", "<p>本文</p>")
	if err != nil {
		t.Fatalf("Enqueue() error = %v, want nil", err)
	}

	if enqueued == nil {
		t.Fatal("message should be enqueued")
	}
	if msg.Recipient != "tenant@example.com" {
		t.Errorf("Recipient = %q", msg.Recipient)
	}
	if msg.Status != model.EmailStatusQueued {
		t.Errorf("Status = %q, want %q", msg.Status, model.EmailStatusQueued)
	}
	if msg.ID == "" {
		t.Error("ID should be generated")
	}
	if msg.TextBody != "本文" {
		t.Errorf("TextBody = %q, want %q", msg.TextBody, "本文")
	}
	if msg.NextAttemptAt.After(time.Now()) {
		t.Error("NextAttemptAt should not be in the future")
	}
}

func TestEnqueue_MissingRecipient(t *testing.T) {
	svc := NewQueueService(&mockEmailQueueRepo{}, passthroughSanitizer{})

	if _, err := svc.Enqueue(context.Background(), "", "subject", "<p>body</p>"); err == nil {
		t.Error("Enqueue() should fail for empty recipient")
	}
}

func TestEnqueue_MissingSubject(t *testing.T) {
	svc := NewQueueService(&mockEmailQueueRepo{}, passthroughSanitizer{})

	if _, err := svc.Enqueue(context.Background(), "a@example.com", "", "<p>body</p>"); err == nil {
		t.Error("Enqueue() should fail for empty subject")
	}
}

func TestEnqueue_SanitizesHTMLBody(t *testing.T) {
	sanitizer := &recordingSanitizer{}
	svc := NewQueueService(&mockEmailQueueRepo{}, sanitizer)

	msg, err := svc.Enqueue(context.Background(), "a@example.com", "subject", "<script>alert(1)</script><p>ok</p>")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if sanitizer.input != "<script>alert(1)</script><p>ok</p>" {
		t.Errorf("sanitizer received %q", sanitizer.input)
	}
	if msg.HTMLBody != "[sanitized]" {
		t.Errorf("HTMLBody = %q, want sanitized output", msg.HTMLBody)
	}
}

func TestRenderPlainText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "paragraphs become lines",
			html: "<p>最初の段落</p><p>次の段落</p>",
			want: "最初の段落\n次の段落",
		},
		{
			name: "list items on separate lines",
			html: "<ul><li>家賃: 50,000</li><li>支払期限: 8月7日</li></ul>",
			want: "家賃: 50,000\n支払期限: 8月7日",
		},
		{
			name: "inline tags are flattened",
			html: "<p><strong>重要:</strong> お支払いください</p>",
			want: "重要: お支払いください",
		},
		{
			name: "plain text unchanged",
			html: "タグなしテキスト",
			want: "タグなしテキスト",
		},
		{
			name: "empty input",
			html: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderPlainText(tt.html)
			if got != tt.want {
				t.Errorf("RenderPlainText(%q) = %q, want %q", tt.html, got, tt.want)
			}
		})
	}
}

func TestRenderPlainText_CollapsesBlankLines(t *testing.T) {
	got := RenderPlainText("<div><p>上</p></div><div><p>下</p></div>")
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("output should not contain consecutive blank lines: %q", got)
	}
}
