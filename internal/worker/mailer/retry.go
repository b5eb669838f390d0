package mailer

import (
	"errors"
	"net/textproto"
	"time"
)

// SendResult は送信エラーに基づく処理結果の分類。
type SendResult int

const (
	// SendResultOK は送信成功。
	SendResultOK SendResult = iota
	// SendResultRetry はバックオフ後に再試行すべき一時的エラー（4xx/接続失敗）。
	SendResultRetry
	// SendResultFail は再試行しても成功しない恒久エラー（SMTP 5xx）。
	SendResultFail
)

const (
	// initialBackoff は指数バックオフの初回遅延（1分）。
	initialBackoff = 1 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（1時間）。
	maxBackoff = 1 * time.Hour
)

// ClassifySendError は送信エラーを処理結果に分類する。
// SMTPサーバーの5xx応答（535認証失敗を含む）は再試行しても成功しない
// 恒久エラーとして即座に失敗扱いにする。それ以外の失敗（4xx応答・接続エラー・
// タイムアウト・シャットダウン時のコンテキストキャンセル）はすべて再試行対象で、
// クレーム済みのメールはバックオフ後に再処理される。
func ClassifySendError(err error) SendResult {
	if err == nil {
		return SendResultOK
	}

	// net/smtpは否定応答をtextproto.Errorで返す
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 && protoErr.Code < 600 {
		return SendResultFail
	}

	return SendResultRetry
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 初回1分、2倍ずつ増加、最大1時間。attemptsは実施済みの試行回数。
func CalculateBackoff(attempts int) time.Duration {
	delay := initialBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
