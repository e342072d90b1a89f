package coordinator

import (
	"encoding/json"

	"tatami/pkg/types"
)

// relayChat forwards a chat frame, untouched, to the sender's current lesson
// partner. Chat is fire-and-forget: a sender with no active lesson gets
// nothing back, and the same applies when the sender is over their rate
// budget.
func (c *Coordinator) relayChat(senderID string, env *types.Envelope) {
	if !c.chatLimiter.allow(senderID) {
		c.logger.Warn("chat rate limit exceeded", "peer", senderID)
		return
	}
	lesson := c.lessonFor(senderID)
	if lesson == nil {
		return
	}
	partnerID := lesson.TeacherID
	if senderID == lesson.TeacherID {
		partnerID = lesson.StudentID
	}
	c.forward(partnerID, env)
}

// relaySignal forwards call signaling (offer/answer/ICE/reject/end) to the
// explicit target, stamping the sender id so the receiver can answer back.
// The target is NOT verified to share a lesson with the sender; clients
// depend on signals reaching a party they learned about out of band.
// voice_signal is the verified variant.
func (c *Coordinator) relaySignal(senderID string, env *types.Envelope) {
	payload, ok := c.decodeSignal(senderID, env)
	if !ok {
		return
	}
	c.send(payload.Target, env.Type, payload)
}

// relayVoiceSignal forwards a voice frame only when sender and target are the
// two parties of the same active lesson.
func (c *Coordinator) relayVoiceSignal(senderID string, env *types.Envelope) {
	payload, ok := c.decodeSignal(senderID, env)
	if !ok {
		return
	}
	lesson := c.lessonFor(senderID)
	if lesson == nil {
		return
	}
	if payload.Target != lesson.TeacherID && payload.Target != lesson.StudentID {
		c.logger.Warn("voice signal outside lesson dropped",
			"peer", senderID, "target", payload.Target)
		return
	}
	c.send(payload.Target, env.Type, payload)
}

func (c *Coordinator) decodeSignal(senderID string, env *types.Envelope) (*types.SignalPayload, bool) {
	var payload types.SignalPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendRequestError(senderID, "validation", "malformed signaling payload")
		return nil, false
	}
	if err := payload.Validate(); err != nil {
		c.sendRequestError(senderID, "validation", err.Error())
		return nil, false
	}
	payload.From = senderID
	return &payload, true
}
