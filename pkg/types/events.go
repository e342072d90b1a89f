package types

import (
	"encoding/json"
)

// Event type constants. This is the canonical contract; older clients spoke
// two divergent dialects for chat and queueing notices, and this table is the
// one that wins.
const (
	// core -> client
	EventPresenceSnapshot = "presence_snapshot"
	EventPresenceChanged  = "presence_changed"
	EventRequestError     = "request_error"
	EventQueued           = "queued"
	EventQueuedNotice     = "queued_notice"
	EventMatched          = "matched"
	EventIdentityExchange = "identity_exchange"
	EventSessionEnded     = "session_ended"
	EventStatsChanged     = "stats_changed"

	// client -> core
	EventBecomeAvailable   = "become_available"
	EventBecomeUnavailable = "become_unavailable"
	EventRequestSession    = "request_session"
	EventCancelRequest     = "cancel_request"
	EventEndSession        = "end_session"

	// relayed through the core
	EventChatMessage  = "chat_message"
	EventCallOffer    = "call_offer"
	EventCallAnswer   = "call_answer"
	EventICECandidate = "ice_candidate"
	EventRejectCall   = "reject_call"
	EventEndCall      = "end_call"
	EventVoiceSignal  = "voice_signal"
)

// Envelope is the wire frame for every websocket event. Relayed payloads stay
// raw so the core forwards them byte-for-byte.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals v into an envelope of the given type. Marshal failures
// are programmer errors on core-built payloads, so they surface as errors
// rather than panics but are not expected at runtime.
func NewEnvelope(eventType string, v any) (*Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: eventType, Payload: payload}, nil
}

// BecomeAvailablePayload carries a teacher's advertised attributes.
type BecomeAvailablePayload struct {
	Name        string `json:"name"`
	Contact     string `json:"contact,omitempty"`
	Proficiency string `json:"proficiency,omitempty"`
	TimeSlot    string `json:"timeSlot,omitempty"`
}

// RequestSessionPayload asks for a lesson with a specific teacher.
type RequestSessionPayload struct {
	Name      string `json:"name"`
	Level     string `json:"level,omitempty"`
	Topic     string `json:"topic,omitempty"`
	TeacherID string `json:"teacherId"`
}

// RequestErrorPayload reports a rejected request_session to the requester.
type RequestErrorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// QueuedPayload tells a student they are waiting and where.
type QueuedPayload struct {
	Position      int    `json:"position"`
	EstimatedWait string `json:"estimatedWait,omitempty"`
}

// QueuedNoticePayload tells a teacher about a waiting student. AlreadyQueued
// marks the replay a teacher receives on become_available for students who
// queued while the teacher was away; those are informational only.
type QueuedNoticePayload struct {
	StudentName   string `json:"studentName"`
	StudentLevel  string `json:"studentLevel,omitempty"`
	Topic         string `json:"topic,omitempty"`
	Position      int    `json:"position"`
	AlreadyQueued bool   `json:"alreadyQueued,omitempty"`
}

// MatchedPayload confirms a lesson to either side. The peer fields are filled
// for whichever role receives it.
type MatchedPayload struct {
	LessonID     string `json:"lessonId"`
	TeacherName  string `json:"teacherName,omitempty"`
	StudentName  string `json:"studentName,omitempty"`
	StudentLevel string `json:"studentLevel,omitempty"`
	Topic        string `json:"topic,omitempty"`
}

// IdentityExchangePayload lets each side resolve the other's connection id
// for direct-addressed call signaling.
type IdentityExchangePayload struct {
	LessonID  string `json:"lessonId"`
	TeacherID string `json:"teacherId"`
	StudentID string `json:"studentId"`
}

// SessionEndedPayload notifies a lesson participant that the lesson is over.
type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

// SignalPayload is the shape of call signaling and voice_signal frames:
// the sender addresses a target, the core stamps the sender id on the way
// through, and Data is opaque.
type SignalPayload struct {
	Target string          `json:"target,omitempty"`
	From   string          `json:"from,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// PresencePayload carries the full teacher list for snapshot and change
// broadcasts.
type PresencePayload struct {
	Teachers []TeacherPresence `json:"teachers"`
}
