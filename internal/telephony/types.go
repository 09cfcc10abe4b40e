package telephony

import "context"

// EventType mirrors the switch event names carried over the event-socket bridge.
type EventType string

const (
	EventAnswer           EventType = "CHANNEL_ANSWER"
	EventBridge           EventType = "CHANNEL_BRIDGE"
	EventExecuteComplete  EventType = "CHANNEL_EXECUTE_COMPLETE"
	EventHangupComplete   EventType = "CHANNEL_HANGUP_COMPLETE"
)

// Event is one call-lifecycle event from the switch.
//
// Variables carries the tracking key=value pairs set at originate time
// (campaign_id, lead_id, list_id, did_id, trunk) plus whatever the switch
// attaches (hangup cause, AMD classification).
type Event struct {
	Type        EventType         `json:"event"`
	CallUUID    string            `json:"call_uuid"`
	Application string            `json:"application,omitempty"`
	BillSeconds int               `json:"billsec,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// TransferApp is the dialplan application whose completion counts as a
// bridge-to-agent for safe-harbor purposes.
const TransferApp = "transfer"

// OriginateRequest describes one outbound call origination.
type OriginateRequest struct {
	// CallerID is the selected DID in E.164.
	CallerID string `json:"caller_id"`

	// Destination is the lead's number in E.164.
	Destination string `json:"destination"`

	// Gateway names the SIP trunk the call leaves through.
	Gateway string `json:"gateway"`

	// Variables are tracking key=value pairs echoed back on every event
	// for this call.
	Variables map[string]string `json:"variables,omitempty"`

	// Extension is the post-answer routing target (the campaign's queue).
	Extension string `json:"extension"`
}

// Commander is the imperative side of the switch channel.
//
// Implementations must be safe for concurrent use: the orchestrator loops and
// the abandonment watchdog issue commands independently.
type Commander interface {
	// Connected reports whether the underlying stream is currently usable.
	// The orchestrator defers its cycle while this is false.
	Connected() bool

	Originate(ctx context.Context, req OriginateRequest) error

	// Playback plays an audio prompt into a live call.
	Playback(ctx context.Context, callUUID, prompt string) error

	// Hangup terminates a call with the given cause.
	Hangup(ctx context.Context, callUUID, cause string) error
}

// EventSource is the consuming side of the switch channel.
type EventSource interface {
	// Events returns the stream of call-lifecycle events. The channel stays
	// open across reconnects and closes only when the source shuts down.
	Events() <-chan Event
}
