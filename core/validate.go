package core

import (
	goerrors "github.com/goliatone/go-errors"
)

// validatedInput is the normalized form of caller input after local checks.
type validatedInput struct {
	Token    string
	Channels []string
}

// validateOperationInput runs every local check an operation needs before a
// descriptor may be built. Failures surface as validation errors and must be
// delivered through the completion path without touching the transport.
func validateOperationInput(op Operation, token string, channels []string) (validatedInput, *goerrors.Error) {
	if err := op.Validate(); err != nil {
		return validatedInput{}, newPushError(err.Error(), goerrors.CategoryValidation, PushErrorBadInput)
	}

	normalizedToken := NormalizeDeviceToken(token)
	if normalizedToken == "" {
		return validatedInput{}, newPushError(
			"core: device push token is required",
			goerrors.CategoryValidation,
			PushErrorBadInput,
		).WithMetadata(map[string]any{"operation": string(op)})
	}

	normalizedChannels := NormalizeChannels(channels)
	if op.RequiresChannels() && len(normalizedChannels) == 0 {
		return validatedInput{}, newPushError(
			"core: at least one channel is required",
			goerrors.CategoryValidation,
			PushErrorBadInput,
		).WithMetadata(map[string]any{"operation": string(op)})
	}
	if !op.RequiresChannels() {
		normalizedChannels = nil
	}

	return validatedInput{Token: normalizedToken, Channels: normalizedChannels}, nil
}
