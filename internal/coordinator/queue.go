package coordinator

import (
	"time"

	"tatami/pkg/types"
)

// The waiting queue is a single append-ordered slice. RequestedAt is
// monotone within it, so "earliest by requestedAt for a teacher" is simply
// the first matching entry.

func (c *Coordinator) isQueued(studentID string) bool {
	for _, waiting := range c.queue {
		if waiting.StudentID == studentID {
			return true
		}
	}
	return false
}

// enqueue appends a waiting entry and returns its position among entries for
// the same teacher.
func (c *Coordinator) enqueue(studentID string, payload *types.RequestSessionPayload) int {
	position := c.queueLengthFor(payload.TeacherID) + 1
	c.queue = append(c.queue, &types.QueuedStudent{
		StudentID:   studentID,
		Name:        payload.Name,
		Level:       payload.Level,
		Topic:       payload.Topic,
		TeacherID:   payload.TeacherID,
		RequestedAt: time.Now(),
	})
	return position
}

func (c *Coordinator) queueLengthFor(teacherID string) int {
	n := 0
	for _, waiting := range c.queue {
		if waiting.TeacherID == teacherID {
			n++
		}
	}
	return n
}

// dequeueFor removes and returns the earliest waiting entry for a teacher,
// or nil when none is waiting.
func (c *Coordinator) dequeueFor(teacherID string) *types.QueuedStudent {
	for i, waiting := range c.queue {
		if waiting.TeacherID == teacherID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return waiting
		}
	}
	return nil
}

// removeQueued drops a student's entry wherever it sits. No-op when absent.
func (c *Coordinator) removeQueued(studentID string) bool {
	for i, waiting := range c.queue {
		if waiting.StudentID == studentID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return true
		}
	}
	return false
}

// cancelRequest handles an explicit cancel from a waiting student. Cancelling
// twice, or without being queued, is a silent no-op.
func (c *Coordinator) cancelRequest(peerID string) {
	if c.removeQueued(peerID) {
		c.logger.Info("request cancelled", "student", peerID)
	}
	c.broadcastStats()
}
