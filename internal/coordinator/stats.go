package coordinator

import (
	"tatami/pkg/types"
)

// computeStats derives the aggregate counts. Nothing is stored; the numbers
// fall out of the three collections the loop already owns.
func (c *Coordinator) computeStats() types.Stats {
	return types.Stats{
		OnlineTeachers:  len(c.presence),
		ActiveLessons:   len(c.lessons),
		WaitingStudents: len(c.queue),
	}
}

// broadcastStats republishes the aggregates to every connection. Called after
// each mutating operation.
func (c *Coordinator) broadcastStats() {
	c.broadcast(types.EventStatsChanged, c.computeStats())
}
