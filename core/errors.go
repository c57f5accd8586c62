package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUnauthorized        = "ORDERBUS_UNAUTHORIZED"
	ErrorBadInput            = "ORDERBUS_BAD_INPUT"
	ErrorIdempotencyConflict = "ORDERBUS_IDEMPOTENCY_CONFLICT"
	ErrorPersistenceFailed   = "ORDERBUS_PERSISTENCE_FAILED"
	ErrorPublishFailed       = "ORDERBUS_PUBLISH_FAILED"
	ErrorDeliveryFailed      = "ORDERBUS_DELIVERY_FAILED"
	ErrorMalformedEvent      = "ORDERBUS_MALFORMED_EVENT"
	ErrorNotFound            = "ORDERBUS_NOT_FOUND"
	ErrorInternal            = "ORDERBUS_INTERNAL_ERROR"
)

func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(HTTPStatusForCategory(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(HTTPStatusForCategory(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func AuthError(message string) *goerrors.Error {
	return NewError(message, goerrors.CategoryAuth, ErrorUnauthorized, nil)
}

// ValidationError carries field level failures keyed by dotted paths.
func ValidationError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func IdempotencyConflictError(idempotencyKey, requestedRef, existingRef string) *goerrors.Error {
	return NewError(
		"idempotency key already used for a different order",
		goerrors.CategoryConflict,
		ErrorIdempotencyConflict,
		map[string]any{
			"idempotency_key": idempotencyKey,
			"order_id":        requestedRef,
			"existing_order":  existingRef,
		},
	)
}

func PersistenceError(source error, message string) *goerrors.Error {
	return WrapError(source, goerrors.CategoryInternal, message, ErrorPersistenceFailed, nil)
}

func PublishError(source error, orderID string) *goerrors.Error {
	return WrapError(source, goerrors.CategoryExternal, "publish order event failed", ErrorPublishFailed, map[string]any{
		"order_id": orderID,
	})
}

func DeliveryError(source error, message string, metadata map[string]any) *goerrors.Error {
	return WrapError(source, goerrors.CategoryExternal, message, ErrorDeliveryFailed, metadata)
}

func MalformedEventError(source error, message string) *goerrors.Error {
	return WrapError(source, goerrors.CategoryBadInput, message, ErrorMalformedEvent, nil)
}

func NotFoundError(message string, metadata map[string]any) *goerrors.Error {
	return NewError(message, goerrors.CategoryNotFound, ErrorNotFound, metadata)
}

func InternalError(source error, message string) *goerrors.Error {
	return WrapError(source, goerrors.CategoryInternal, message, ErrorInternal, nil)
}

// AsError normalizes any error into a go-errors envelope with a status code
// and text code set.
func AsError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected error occurred")
	}
	if rich.Code == 0 {
		rich.Code = HTTPStatusForCategory(rich.Category)
	}
	if strings.TrimSpace(rich.TextCode) == "" {
		rich.TextCode = defaultTextCode(rich.Category)
	}
	return rich
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AsError(err).Code
}

func HasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrOrderNotFound) {
		return true
	}
	return HasTextCode(err, ErrorNotFound) || goerrors.IsNotFound(err)
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorIdempotencyConflict
	default:
		return ErrorInternal
	}
}

func HTTPStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
