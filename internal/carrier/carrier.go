package carrier

import "context"

// PlaceParams are the carrier-facing parameters for one outbound placement.
type PlaceParams struct {
	// To is the destination number (E.164).
	To string
	// From is the caller id number owned by the platform (E.164).
	From string
	// VoiceURL is the webhook the carrier fetches when the call is answered.
	VoiceURL string
	// StatusCallbackURL receives asynchronous lifecycle events.
	StatusCallbackURL string
	// RecordingCallbackURL receives recording-ready notifications.
	RecordingCallbackURL string
	// TimeoutSeconds bounds how long the carrier lets the destination ring.
	TimeoutSeconds int
	// MachineDetection enables answering machine detection when set.
	MachineDetection string
}

// CallHandle identifies a placed call at the provider for webhook
// correlation.
type CallHandle struct {
	SID    string
	Status string
}

// CallPlacer places outbound calls at a telephony provider.
type CallPlacer interface {
	PlaceCall(ctx context.Context, params PlaceParams) (*CallHandle, error)
}
