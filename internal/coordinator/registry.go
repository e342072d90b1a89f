package coordinator

import (
	"tatami/pkg/types"
)

// participant is one connection registry entry: the ephemeral logical
// identity plus whatever role the connection has declared so far.
type participant struct {
	peer Peer
	role string
}

func (c *Coordinator) addParticipant(peer Peer) {
	id := peer.ID()
	if existing, ok := c.participants[id]; ok && existing.peer != peer {
		// Duplicate id means a transport bug; the old connection loses.
		_ = existing.peer.Close()
	}
	c.participants[id] = &participant{peer: peer}
}

func (c *Coordinator) removeParticipant(peerID string) {
	delete(c.participants, peerID)
}

func (c *Coordinator) setRole(peerID, role string) {
	if p, ok := c.participants[peerID]; ok {
		p.role = role
	}
}

// send delivers one event to one participant. Delivery is best effort: a full
// or closed connection drops the event and the connection's own read loop is
// responsible for tearing it down.
func (c *Coordinator) send(peerID, eventType string, payload any) {
	p, ok := c.participants[peerID]
	if !ok {
		return
	}
	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		c.logger.Error("marshal event", "type", eventType, "error", err)
		return
	}
	if err := p.peer.Send(env); err != nil {
		c.logger.Warn("send failed", "type", eventType, "peer", peerID, "error", err)
	}
}

// forward relays an already-encoded envelope verbatim.
func (c *Coordinator) forward(peerID string, env *types.Envelope) {
	p, ok := c.participants[peerID]
	if !ok {
		return
	}
	if err := p.peer.Send(env); err != nil {
		c.logger.Warn("forward failed", "type", env.Type, "peer", peerID, "error", err)
	}
}

// broadcast sends one event to every connected participant.
func (c *Coordinator) broadcast(eventType string, payload any) {
	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		c.logger.Error("marshal broadcast", "type", eventType, "error", err)
		return
	}
	for id, p := range c.participants {
		if err := p.peer.Send(env); err != nil {
			c.logger.Warn("broadcast send failed", "type", eventType, "peer", id, "error", err)
		}
	}
}
