package devkit

import (
	"github.com/goliatone/go-pushregistry/transport"
)

// ThrottleThenAckScenario scripts a transport that throttles once with a
// Retry-After hint and acknowledges every call after that.
func ThrottleThenAckScenario(retryAfterSeconds int) *FakeTransportAdapter {
	return NewFakeTransportAdapter(transport.KindREST,
		TransportScript{Response: ThrottledResponse(retryAfterSeconds)},
		TransportScript{Response: AckResponse()},
	)
}

// FlakyNetworkScenario scripts a transport that fails with cause for the
// given number of calls and acknowledges after that.
func FlakyNetworkScenario(failures int, cause error) *FakeTransportAdapter {
	scripts := make([]TransportScript, 0, failures+1)
	for i := 0; i < failures; i++ {
		scripts = append(scripts, TransportScript{Err: cause})
	}
	scripts = append(scripts, TransportScript{Response: AckResponse()})
	return NewFakeTransportAdapter(transport.KindREST, scripts...)
}

// AuditScenario scripts a transport that answers every call with the given
// audit channel list.
func AuditScenario(channels ...string) *FakeTransportAdapter {
	return NewFakeTransportAdapter(transport.KindREST,
		TransportScript{Response: AuditResponse(channels...)},
	)
}

// DeniedScenario scripts a transport that rejects every call with the given
// status and service message.
func DeniedScenario(statusCode int, message string) *FakeTransportAdapter {
	return NewFakeTransportAdapter(transport.KindREST,
		TransportScript{Response: ServiceErrorResponse(statusCode, message)},
	)
}
