// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, payment, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeMissingToken       = "MISSING_TOKEN"
	ErrCodePropertyNotFound   = "PROPERTY_NOT_FOUND"
	ErrCodeUnitNotFound       = "UNIT_NOT_FOUND"
	ErrCodeTenancyNotFound    = "TENANCY_NOT_FOUND"
	ErrCodeInvoiceNotFound    = "INVOICE_NOT_FOUND"
	ErrCodePaymentNotFound    = "PAYMENT_NOT_FOUND"
	ErrCodeInvoiceAlreadyPaid = "INVOICE_ALREADY_PAID"
	ErrCodeTenancyEnded       = "TENANCY_ENDED"
	ErrCodeUnitOccupied       = "UNIT_OCCUPIED"
	ErrCodeNotOwner           = "NOT_OWNER"
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodeInvalidCallbackURL = "INVALID_CALLBACK_URL"
)

// NewInvalidTokenError は不正なアクセストークンのエラーを生成する。
func NewInvalidTokenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  fmt.Sprintf("アクセストークンが無効です: %s", reason),
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewPropertyNotFoundError は物件未検出エラーを生成する。
func NewPropertyNotFoundError(propertyID string) *APIError {
	return &APIError{
		Code:     ErrCodePropertyNotFound,
		Message:  fmt.Sprintf("指定された物件が見つかりません: %s", propertyID),
		Category: "validation",
		Action:   "物件IDを確認してください。",
	}
}

// NewTenancyNotFoundError は契約未検出エラーを生成する。
func NewTenancyNotFoundError(tenancyID string) *APIError {
	return &APIError{
		Code:     ErrCodeTenancyNotFound,
		Message:  fmt.Sprintf("指定された契約が見つかりません: %s", tenancyID),
		Category: "validation",
		Action:   "契約IDを確認してください。",
	}
}

// NewInvoiceNotFoundError は請求書未検出エラーを生成する。
func NewInvoiceNotFoundError(invoiceID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvoiceNotFound,
		Message:  fmt.Sprintf("指定された請求書が見つかりません: %s", invoiceID),
		Category: "billing",
		Action:   "請求書IDを確認してください。",
	}
}

// NewInvoiceAlreadyPaidError は支払い済み請求書への決済エラーを生成する。
func NewInvoiceAlreadyPaidError(invoiceID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvoiceAlreadyPaid,
		Message:  fmt.Sprintf("この請求書はすでに支払い済みです: %s", invoiceID),
		Category: "billing",
		Action:   "支払い状況を確認してください。",
	}
}

// NewUnitOccupiedError は入居中区画への契約作成エラーを生成する。
func NewUnitOccupiedError(unitID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnitOccupied,
		Message:  fmt.Sprintf("この区画には既に有効な契約があります: %s", unitID),
		Category: "validation",
		Action:   "既存の契約を終了してから作成してください。",
	}
}

// NewNotOwnerError は所有者以外による操作のエラーを生成する。
func NewNotOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  "この物件を操作する権限がありません。",
		Category: "auth",
		Action:   "自身が所有する物件のみ操作できます。",
	}
}

// NewGatewayUnavailableError は決済ゲートウェイ未設定のエラーを生成する。
func NewGatewayUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeGatewayUnavailable,
		Message:  "決済ゲートウェイが設定されていません。",
		Category: "payment",
		Action:   "管理者にPesapal認証情報の設定を依頼してください。",
	}
}

// NewInvalidCallbackURLError は不正なIPNコールバックURLのエラーを生成する。
func NewInvalidCallbackURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCallbackURL,
		Message:  fmt.Sprintf("IPNコールバックURLが不正です: %s", reason),
		Category: "payment",
		Action:   "PESAPAL_CALLBACK_URLに公開HTTPS URLを設定してください。",
	}
}
