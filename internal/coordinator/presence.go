package coordinator

import (
	"encoding/json"
	"sort"
	"time"

	"tatami/pkg/types"
)

// setAvailable upserts the sender's presence card, announces the new teacher
// list to everyone, and replays the sender's existing queue as informational
// notices. Replay never promotes: promotion happens only when a lesson ends.
func (c *Coordinator) setAvailable(peerID string, env *types.Envelope) {
	var payload types.BecomeAvailablePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendRequestError(peerID, "validation", "malformed become_available payload")
		return
	}
	if err := payload.Validate(); err != nil {
		c.sendRequestError(peerID, "validation", err.Error())
		return
	}

	c.setRole(peerID, types.RoleTeacher)
	c.presence[peerID] = &types.TeacherPresence{
		TeacherID:   peerID,
		Name:        payload.Name,
		Contact:     payload.Contact,
		Proficiency: payload.Proficiency,
		TimeSlot:    payload.TimeSlot,
		OnlineAt:    time.Now(),
	}
	c.broadcastPresence()

	position := 0
	for _, waiting := range c.queue {
		if waiting.TeacherID != peerID {
			continue
		}
		position++
		c.send(peerID, types.EventQueuedNotice, types.QueuedNoticePayload{
			StudentName:   waiting.Name,
			StudentLevel:  waiting.Level,
			Topic:         waiting.Topic,
			Position:      position,
			AlreadyQueued: true,
		})
	}

	c.broadcastStats()
	c.logger.Info("teacher available", "teacher", peerID, "name", payload.Name, "queued", position)
}

// setUnavailable removes the sender's presence card if it has one.
func (c *Coordinator) setUnavailable(peerID string) {
	if _, ok := c.presence[peerID]; !ok {
		return
	}
	delete(c.presence, peerID)
	c.broadcastPresence()
	c.broadcastStats()
	c.logger.Info("teacher unavailable", "teacher", peerID)
}

// presenceSnapshot copies the directory, oldest-online first.
func (c *Coordinator) presenceSnapshot() []types.TeacherPresence {
	teachers := make([]types.TeacherPresence, 0, len(c.presence))
	for _, p := range c.presence {
		teachers = append(teachers, *p)
	}
	sort.Slice(teachers, func(i, j int) bool {
		return teachers[i].OnlineAt.Before(teachers[j].OnlineAt)
	})
	return teachers
}

func (c *Coordinator) broadcastPresence() {
	c.broadcast(types.EventPresenceChanged, types.PresencePayload{Teachers: c.presenceSnapshot()})
}

func (c *Coordinator) sendRequestError(peerID, reason, message string) {
	c.send(peerID, types.EventRequestError, types.RequestErrorPayload{Reason: reason, Message: message})
}
