package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	queryParamType    = "type"
	queryParamAdd     = "add"
	queryParamRemove  = "remove"
	pushEndpointBase  = "/v1/push/sub-key"
	removeAllSegment  = "remove"
	headerAccept      = "Accept"
	headerUserAgent   = "User-Agent"
	acceptContentType = "application/json"
)

// RequestBuilder produces immutable transport descriptors for the push
// registry endpoints. Building is pure: equal inputs always yield identical
// descriptors, which is what makes byte-identical retries possible.
type RequestBuilder struct {
	Origin               string
	SubscribeKey         string
	UserAgent            string
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

func NewRequestBuilder(cfg Config) *RequestBuilder {
	return &RequestBuilder{
		Origin:               strings.TrimRight(strings.TrimSpace(cfg.Origin), "/"),
		SubscribeKey:         strings.TrimSpace(cfg.SubscribeKey),
		UserAgent:            strings.TrimSpace(cfg.UserAgent),
		Timeout:              cfg.RequestTimeout,
		MaxResponseBodyBytes: cfg.MaxResponseBodyBytes,
	}
}

// Build assembles the descriptor for one operation cycle. Token and channels
// must already be normalized.
func (b *RequestBuilder) Build(op Operation, pushType PushType, token string, channels []string) (TransportRequest, error) {
	if b == nil {
		return TransportRequest{}, fmt.Errorf("core: request builder is nil")
	}
	if err := op.Validate(); err != nil {
		return TransportRequest{}, err
	}
	if err := pushType.Validate(); err != nil {
		return TransportRequest{}, err
	}
	if b.Origin == "" {
		return TransportRequest{}, fmt.Errorf("core: origin is required")
	}
	if b.SubscribeKey == "" {
		return TransportRequest{}, fmt.Errorf("core: subscribe key is required")
	}
	if token == "" {
		return TransportRequest{}, fmt.Errorf("core: device push token is required")
	}

	path := b.devicePath(token)
	query := map[string]string{
		queryParamType: string(pushType),
	}

	switch op {
	case OperationEnable:
		query[queryParamAdd] = joinChannels(channels)
	case OperationDisable:
		query[queryParamRemove] = joinChannels(channels)
	case OperationDisableAll:
		path = path + "/" + removeAllSegment
	case OperationAudit:
		// bare type query audits the enabled channel set
	}

	headers := map[string]string{
		headerAccept: acceptContentType,
	}
	if b.UserAgent != "" {
		headers[headerUserAgent] = b.UserAgent
	}

	request := TransportRequest{
		Method:               http.MethodGet,
		URL:                  b.Origin + path,
		Headers:              headers,
		Query:                query,
		Metadata:             map[string]any{"operation": string(op)},
		Timeout:              b.Timeout,
		MaxResponseBodyBytes: b.MaxResponseBodyBytes,
	}
	request.Idempotency = generateIdempotencyKey(b.SubscribeKey, string(op), request)
	return request, nil
}

func (b *RequestBuilder) devicePath(token string) string {
	return pushEndpointBase + "/" + url.PathEscape(b.SubscribeKey) + "/devices/" + url.PathEscape(token)
}

// joinChannels comma-joins an already normalized channel list, preserving
// first-seen order.
func joinChannels(channels []string) string {
	return strings.Join(channels, ",")
}

func generateIdempotencyKey(subscribeKey string, operation string, request TransportRequest) string {
	canonicalURL := canonicalTransportRequestURL(request.URL, request.Query)
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSpace(strings.ToLower(subscribeKey)))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(strings.ToLower(operation)))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(strings.ToUpper(request.Method)))
	builder.WriteString("|")
	builder.WriteString(canonicalURL)
	builder.WriteString("|")
	builder.Write(request.Body)
	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}

func canonicalTransportRequestURL(rawURL string, query map[string]string) string {
	trimmedURL := strings.TrimSpace(rawURL)
	parsedURL, err := url.Parse(trimmedURL)
	if err != nil || parsedURL == nil {
		return trimmedURL
	}

	values := parsedURL.Query()
	for key, value := range query {
		values.Set(key, value)
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	canonical := url.Values{}
	for _, key := range keys {
		for _, value := range values[key] {
			canonical.Add(key, value)
		}
	}
	parsedURL.RawQuery = canonical.Encode()
	return parsedURL.String()
}
