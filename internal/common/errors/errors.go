package errors

import (
	"fmt"
	"time"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeForbidden  ErrorCode = "FORBIDDEN"

	// Ошибки модерации
	ErrCodeUserBanned ErrorCode = "USER_BANNED"
	ErrCodeUserMuted  ErrorCode = "USER_MUTED"

	// Ошибки доставки и хранилища
	ErrCodeDelivery    ErrorCode = "DELIVERY_ERROR"
	ErrCodePersistence ErrorCode = "PERSISTENCE_ERROR"

	// Ошибки внешних API
	ErrCodeTelegramAPI ErrorCode = "TELEGRAM_API_ERROR"
)

// AppError представляет типизированную ошибку приложения
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    int64                  `json:"user_id,omitempty"`
	Cause     error                  `json:"-"`
}

// Error возвращает строковое представление ошибки
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsAuthorization reports whether the error denies the acting identity.
func (e *AppError) IsAuthorization() bool {
	return e.Code == ErrCodeForbidden || e.Code == ErrCodeUserBanned || e.Code == ErrCodeUserMuted
}

// IsValidation проверяет, является ли ошибка ошибкой валидации
func (e *AppError) IsValidation() bool {
	return e.Code == ErrCodeValidation
}

// IsNotFound проверяет, является ли ошибка ошибкой "не найдено"
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeNotFound
}

// IsPersistence reports whether a store write failed; such errors are fatal
// for the request that triggered them.
func (e *AppError) IsPersistence() bool {
	return e.Code == ErrCodePersistence
}

// WithDetail добавляет детальную информацию к ошибке
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithUserID добавляет ID пользователя к ошибке
func (e *AppError) WithUserID(userID int64) *AppError {
	e.UserID = userID
	return e
}

// New создает новую ошибку приложения
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf оборачивает существующую ошибку с форматированием
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Конструкторы для часто используемых ошибок

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewNotFoundError создает ошибку "не найдено"
func NewNotFoundError(resource string, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewForbiddenError создает ошибку доступа
func NewForbiddenError(reason string) *AppError {
	return New(ErrCodeForbidden, fmt.Sprintf("Forbidden: %s", reason)).
		WithDetail("reason", reason)
}

// NewDeliveryError создает ошибку доставки сообщения одному получателю
func NewDeliveryError(recipientID int64, err error) *AppError {
	return Wrap(err, ErrCodeDelivery, fmt.Sprintf("Delivery failed for recipient %d", recipientID)).
		WithUserID(recipientID)
}

// NewPersistenceError создает ошибку записи хранилища
func NewPersistenceError(operation string, err error) *AppError {
	return Wrap(err, ErrCodePersistence, fmt.Sprintf("Store operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewTelegramAPIError создает ошибку Telegram API
func NewTelegramAPIError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTelegramAPI, fmt.Sprintf("Telegram API operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// AsAppError приводит ошибку к AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil {
		appErr, _ = err.(*AppError)
	}
	return appErr, appErr != nil
}
