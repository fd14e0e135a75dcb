package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pushregistry/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// transportTextCode projects envelope categories onto the push error
// vocabulary. External failures at this layer are network failures:
// the call never produced a usable service response.
func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.PushErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.PushErrorAccessDenied
	case goerrors.CategoryRateLimit:
		return core.PushErrorRateLimited
	case goerrors.CategoryOperation:
		return core.PushErrorCancelled
	case goerrors.CategoryExternal:
		return core.PushErrorNetwork
	default:
		return core.PushErrorInternal
	}
}
