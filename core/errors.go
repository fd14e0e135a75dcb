package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PushErrorBadInput          = "PUSH_BAD_INPUT"
	PushErrorNetwork           = "PUSH_NETWORK"
	PushErrorServer            = "PUSH_SERVER"
	PushErrorAccessDenied      = "PUSH_ACCESS_DENIED"
	PushErrorMalformedResponse = "PUSH_MALFORMED_RESPONSE"
	PushErrorCancelled         = "PUSH_CANCELLED"
	PushErrorRateLimited       = "PUSH_RATE_LIMITED"
	PushErrorRetryUnavailable  = "PUSH_RETRY_UNAVAILABLE"
	PushErrorInternal          = "PUSH_INTERNAL_ERROR"
)

func pushErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePushErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newPushError(err.Error(), goerrors.CategoryRateLimit, PushErrorRateLimited)
	case strings.Contains(msg, "forbidden"), strings.Contains(msg, "access denied"), strings.Contains(msg, "unauthorized"):
		return newPushError(err.Error(), goerrors.CategoryAuth, PushErrorAccessDenied)
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "unexpected payload"):
		return newPushError(err.Error(), goerrors.CategoryExternal, PushErrorMalformedResponse)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newPushError(err.Error(), goerrors.CategoryValidation, PushErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePushErrorEnvelope(mapped)
}

func newPushError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensurePushErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensurePushErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = pushHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPushTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPushTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PushErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return PushErrorAccessDenied
	case goerrors.CategoryRateLimit:
		return PushErrorRateLimited
	case goerrors.CategoryExternal:
		return PushErrorServer
	case goerrors.CategoryOperation:
		return PushErrorCancelled
	case goerrors.CategoryConflict:
		return PushErrorRetryUnavailable
	default:
		return PushErrorInternal
	}
}

func pushHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// categoryErrorCategory maps a status category onto the error envelope
// category used for the status Err field.
func categoryErrorCategory(category StatusCategory) goerrors.Category {
	switch category {
	case StatusCategoryValidation:
		return goerrors.CategoryValidation
	case StatusCategoryNetwork, StatusCategoryServer, StatusCategoryMalformedResponse:
		return goerrors.CategoryExternal
	case StatusCategoryAccessDenied:
		return goerrors.CategoryAuth
	case StatusCategoryCancelled:
		return goerrors.CategoryOperation
	default:
		return goerrors.CategoryInternal
	}
}

func categoryTextCode(category StatusCategory) string {
	switch category {
	case StatusCategoryValidation:
		return PushErrorBadInput
	case StatusCategoryNetwork:
		return PushErrorNetwork
	case StatusCategoryServer:
		return PushErrorServer
	case StatusCategoryAccessDenied:
		return PushErrorAccessDenied
	case StatusCategoryMalformedResponse:
		return PushErrorMalformedResponse
	case StatusCategoryCancelled:
		return PushErrorCancelled
	default:
		return PushErrorInternal
	}
}
