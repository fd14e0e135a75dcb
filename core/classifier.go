package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// servicePayload is the error envelope the push registry returns on non-2xx
// responses: {"status":403,"error":true,"service":"push","message":"Forbidden"}.
type servicePayload struct {
	Status  int    `json:"status"`
	Error   bool   `json:"error"`
	Service string `json:"service"`
	Message string `json:"message"`
}

// classifyResult maps a raw transport outcome onto a Status, plus the parsed
// audit result when the operation was an audit and the cycle succeeded.
func classifyResult(
	op Operation,
	pushType PushType,
	request TransportRequest,
	response TransportResponse,
	callErr error,
) (*Status, *AuditResult) {
	base := Status{
		Operation:   op,
		PushType:    pushType,
		Idempotency: request.Idempotency,
		Request:     cloneTransportRequest(request),
	}

	if callErr != nil {
		if isContextCancellation(callErr) {
			return cancelledStatus(base, callErr), nil
		}
		return networkStatus(base, callErr), nil
	}

	base.StatusCode = response.StatusCode
	if retryAfter, ok := parseRetryAfterHeader(response.Headers); ok {
		base.RetryAfter = retryAfter
	}

	switch {
	case response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices:
		return classifySuccess(op, base, response)
	case response.StatusCode == http.StatusUnauthorized, response.StatusCode == http.StatusForbidden:
		return accessDeniedStatus(base, response), nil
	case response.StatusCode == http.StatusTooManyRequests:
		return serverStatus(base, response, true), nil
	case response.StatusCode >= http.StatusInternalServerError:
		return serverStatus(base, response, true), nil
	default:
		return serverStatus(base, response, false), nil
	}
}

func classifySuccess(op Operation, base Status, response TransportResponse) (*Status, *AuditResult) {
	if op == OperationAudit {
		channels, err := parseAuditChannels(response.Body)
		if err != nil {
			return malformedStatus(base, err), nil
		}
		status := base
		status.Category = StatusCategoryAcknowledgment
		result := &AuditResult{
			Operation: op,
			PushType:  base.PushType,
			Channels:  channels,
		}
		return &status, result
	}

	status := base
	status.Category = StatusCategoryAcknowledgment
	if message, ok := parseAckPayload(response.Body); ok {
		status.ServiceMessage = message
	}
	return &status, nil
}

// parseAckPayload reads the [1, "Modified Channels"] acknowledgment shape.
// Modification success is keyed off the status code, so an unexpected body
// only costs the service message.
func parseAckPayload(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	var payload []any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	if len(payload) < 2 {
		return "", false
	}
	message, ok := payload[1].(string)
	if !ok {
		return "", false
	}
	return message, true
}

// parseAuditChannels reads the audit payload, a JSON array of channel names.
// Anything else breaks the contract and classifies as malformed.
func parseAuditChannels(body []byte) ([]string, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("core: audit response body is empty")
	}
	var channels []string
	if err := json.Unmarshal(body, &channels); err != nil {
		return nil, fmt.Errorf("core: audit response is not a channel list: %w", err)
	}
	normalized := NormalizeChannels(channels)
	if normalized == nil {
		normalized = []string{}
	}
	return normalized, nil
}

func parseServicePayload(body []byte) (servicePayload, bool) {
	if len(body) == 0 {
		return servicePayload{}, false
	}
	var payload servicePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return servicePayload{}, false
	}
	if payload.Message == "" && payload.Service == "" && payload.Status == 0 {
		return servicePayload{}, false
	}
	return payload, true
}

func cancelledStatus(base Status, cause error) *Status {
	status := base
	status.Category = StatusCategoryCancelled
	status.Retryable = false
	status.Err = buildStatusError(status, cause.Error(), cause)
	return &status
}

func networkStatus(base Status, cause error) *Status {
	status := base
	status.Category = StatusCategoryNetwork
	status.Retryable = true
	status.Err = buildStatusError(status, cause.Error(), cause)
	return &status
}

func accessDeniedStatus(base Status, response TransportResponse) *Status {
	status := base
	status.Category = StatusCategoryAccessDenied
	status.Retryable = false
	message := fmt.Sprintf("core: push registry denied access with status %d", response.StatusCode)
	if payload, ok := parseServicePayload(response.Body); ok {
		status.Service = payload.Service
		status.ServiceMessage = payload.Message
		if payload.Message != "" {
			message = payload.Message
		}
	}
	status.Err = buildStatusError(status, message, nil)
	return &status
}

func serverStatus(base Status, response TransportResponse, retryable bool) *Status {
	status := base
	status.Category = StatusCategoryServer
	status.Retryable = retryable
	message := fmt.Sprintf("core: push registry returned status %d", response.StatusCode)
	if payload, ok := parseServicePayload(response.Body); ok {
		status.Service = payload.Service
		status.ServiceMessage = payload.Message
		if payload.Message != "" {
			message = payload.Message
		}
	}
	status.Err = buildStatusError(status, message, nil)
	return &status
}

func malformedStatus(base Status, cause error) *Status {
	status := base
	status.Category = StatusCategoryMalformedResponse
	status.Retryable = false
	status.Err = buildStatusError(status, cause.Error(), cause)
	return &status
}

func validationStatus(op Operation, pushType PushType, verr *goerrors.Error) *Status {
	status := Status{
		Operation: op,
		PushType:  pushType,
		Category:  StatusCategoryValidation,
		Retryable: false,
		Err:       ensurePushErrorEnvelope(verr),
	}
	if status.Err != nil {
		status.StatusCode = status.Err.Code
	}
	return &status
}

// buildStatusError wraps the cycle outcome in the shared error envelope so
// every surfaced failure carries a category, code, and metadata.
func buildStatusError(status Status, message string, cause error) *goerrors.Error {
	category := categoryErrorCategory(status.Category)
	textCode := categoryTextCode(status.Category)
	if status.StatusCode == http.StatusTooManyRequests {
		category = goerrors.CategoryRateLimit
		textCode = PushErrorRateLimited
	}

	var wrapped *goerrors.Error
	if cause != nil {
		wrapped = goerrors.Wrap(cause, category, message)
	} else {
		wrapped = goerrors.New(message, category)
	}
	wrapped = wrapped.WithTextCode(textCode).WithMetadata(map[string]any{
		"operation":   string(status.Operation),
		"push_type":   string(status.PushType),
		"category":    string(status.Category),
		"status_code": status.StatusCode,
		"retryable":   status.Retryable,
	})
	if status.StatusCode != 0 {
		wrapped.Code = status.StatusCode
	}
	return ensurePushErrorEnvelope(wrapped)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func parseRetryAfterHeader(headers map[string]string) (time.Duration, bool) {
	if len(headers) == 0 {
		return 0, false
	}
	raw := ""
	for key, value := range headers {
		if strings.EqualFold(strings.TrimSpace(key), "retry-after") {
			raw = strings.TrimSpace(value)
			break
		}
	}
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := time.Parse(time.RFC1123, raw); err == nil {
		if retryAt.After(time.Now().UTC()) {
			return retryAt.Sub(time.Now().UTC()), true
		}
	}
	if retryAt, err := time.Parse(time.RFC1123Z, raw); err == nil {
		if retryAt.After(time.Now().UTC()) {
			return retryAt.Sub(time.Now().UTC()), true
		}
	}
	return 0, false
}
