// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MailSanitizerService は送信メールのHTML本文をサニタイズし、
// テンプレートに混入した外部入力（入居者名・物件名等）経由の
// スクリプト注入からメール受信者を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// MailSanitizerService はメールHTML本文のサニタイズ機能のインターフェースを定義する。
// メールキューへの投入前に使用される。
type MailSanitizerService interface {
	// Sanitize はHTML本文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, table, tr, td, th, h1-h3, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// mailSanitizer はMailSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type mailSanitizer struct {
	policy *bluemonday.Policy
}

// NewMailSanitizer はMailSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, table, tr, td, th, h1, h2, h3, strong, em
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aタグ: href属性のみ許可、httpsスキームのみ
func NewMailSanitizer() *mailSanitizer {
	p := bluemonday.NewPolicy()

	// 請求書・領収書メールで使用するシンプルなタグのみ許可する。
	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されない。
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"table", "tr", "td", "th",
		"h1", "h2", "h3",
		"strong", "em",
	)

	// aタグはhref属性のみ許可し、httpsの絶対URLに限定する。
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &mailSanitizer{
		policy: p,
	}
}

// Sanitize はHTML本文をサニタイズして安全なHTMLを返す。
func (s *mailSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
