package security

import (
	"strings"
	"testing"
)

func TestSanitize_RemovesScript(t *testing.T) {
	s := NewMailSanitizer()

	got := s.Sanitize(`<p>請求書</p><script>alert('xss')</script>`)
	if strings.Contains(got, "<script") || strings.Contains(got, "alert") {
		t.Errorf("script should be removed, got %q", got)
	}
	if !strings.Contains(got, "<p>請求書</p>") {
		t.Errorf("allowed tag should survive, got %q", got)
	}
}

func TestSanitize_RemovesEventAttributes(t *testing.T) {
	s := NewMailSanitizer()

	got := s.Sanitize(`<p onclick="steal()">本文</p>`)
	if strings.Contains(got, "onclick") {
		t.Errorf("event attribute should be removed, got %q", got)
	}
	if !strings.Contains(got, "本文") {
		t.Errorf("text content should survive, got %q", got)
	}
}

func TestSanitize_RemovesIframe(t *testing.T) {
	s := NewMailSanitizer()

	got := s.Sanitize(`<iframe src="https://evil.example.com"></iframe><p>ok</p>`)
	if strings.Contains(got, "iframe") {
		t.Errorf("iframe should be removed, got %q", got)
	}
}

func TestSanitize_AllowsInvoiceMarkup(t *testing.T) {
	s := NewMailSanitizer()

	input := `<h2>2026年8月分 請求書</h2><table><tr><th>項目</th><td>家賃</td></tr></table><ul><li>期日: 8月8日</li></ul><strong>50,000 KES</strong>`
	got := s.Sanitize(input)

	for _, tag := range []string{"<h2>", "<table>", "<tr>", "<th>", "<td>", "<ul>", "<li>", "<strong>"} {
		if !strings.Contains(got, tag) {
			t.Errorf("allowed tag %s should survive, got %q", tag, got)
		}
	}
}

func TestSanitize_HTTPSLinksOnly(t *testing.T) {
	s := NewMailSanitizer()

	got := s.Sanitize(`<a href="https://pay.example.com/inv-1">支払う</a>`)
	if !strings.Contains(got, `href="https://pay.example.com/inv-1"`) {
		t.Errorf("https link should survive, got %q", got)
	}

	got = s.Sanitize(`<a href="javascript:alert(1)">クリック</a>`)
	if strings.Contains(got, "javascript:") {
		t.Errorf("javascript: URL should be removed, got %q", got)
	}

	got = s.Sanitize(`<a href="http://insecure.example.com">リンク</a>`)
	if strings.Contains(got, "http://insecure.example.com") {
		t.Errorf("http link should be removed, got %q", got)
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	s := NewMailSanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewMailSanitizer()

	input := `<p>本文</p><script>x()</script><ul><li>a</li></ul>`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("sanitize should be idempotent: first %q, second %q", once, twice)
	}
}
