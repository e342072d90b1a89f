package coordinator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"tatami/pkg/types"
)

// requestLesson is the matching engine. Exactly one of three things happens:
// the request is rejected to the sender alone, the student is queued behind a
// busy teacher, or a lesson starts immediately. Arrival order at the loop is
// the tie-break when several students want the same idle teacher.
func (c *Coordinator) requestLesson(peerID string, env *types.Envelope) {
	var payload types.RequestSessionPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendRequestError(peerID, "validation", "malformed request_session payload")
		return
	}
	if err := payload.Validate(); err != nil {
		c.sendRequestError(peerID, "validation", err.Error())
		return
	}

	teacher, online := c.presence[payload.TeacherID]
	if !online {
		c.sendRequestError(peerID, "not_found", "that teacher is currently offline")
		return
	}

	// A student already in a lesson cannot hold a second one.
	if c.lessonFor(peerID) != nil {
		return
	}

	c.setRole(peerID, types.RoleStudent)

	if c.lessonFor(payload.TeacherID) != nil {
		if c.isQueued(peerID) {
			// Idempotent re-request while already waiting.
			return
		}
		position := c.enqueue(peerID, &payload)
		c.send(peerID, types.EventQueued, types.QueuedPayload{
			Position:      position,
			EstimatedWait: c.estimateWait(position),
		})
		c.send(payload.TeacherID, types.EventQueuedNotice, types.QueuedNoticePayload{
			StudentName:  payload.Name,
			StudentLevel: payload.Level,
			Topic:        payload.Topic,
			Position:     position,
		})
		c.broadcastStats()
		c.logger.Info("student queued", "student", peerID, "teacher", payload.TeacherID, "position", position)
		return
	}

	// Matching with an idle teacher supersedes any wait for another one; a
	// stale entry left behind would promote this student into a second
	// lesson later.
	c.removeQueued(peerID)

	c.startLesson(teacher, &types.QueuedStudent{
		StudentID: peerID,
		Name:      payload.Name,
		Level:     payload.Level,
		Topic:     payload.Topic,
		TeacherID: payload.TeacherID,
	})
	c.broadcastStats()
}

// startLesson creates the lesson, arms its countdown, and tells both parties.
func (c *Coordinator) startLesson(teacher *types.TeacherPresence, student *types.QueuedStudent) *types.Lesson {
	lesson := &types.Lesson{
		ID:           ulid.Make().String(),
		TeacherID:    teacher.TeacherID,
		StudentID:    student.StudentID,
		TeacherName:  teacher.Name,
		StudentName:  student.Name,
		StudentLevel: student.Level,
		Topic:        student.Topic,
		StartedAt:    time.Now(),
		Duration:     c.cfg.LessonDuration,
		Status:       types.LessonActive,
	}
	c.lessons[lesson.ID] = lesson

	id := lesson.ID
	c.timers[id] = time.AfterFunc(lesson.Duration, func() {
		// Re-enter the loop; a lesson already ended by then is a no-op there.
		_ = c.post(event{kind: evLessonExpired, lessonID: id})
	})

	c.send(lesson.StudentID, types.EventMatched, types.MatchedPayload{
		LessonID:    lesson.ID,
		TeacherName: lesson.TeacherName,
	})
	c.send(lesson.TeacherID, types.EventMatched, types.MatchedPayload{
		LessonID:     lesson.ID,
		StudentName:  lesson.StudentName,
		StudentLevel: lesson.StudentLevel,
		Topic:        lesson.Topic,
	})

	identity := types.IdentityExchangePayload{
		LessonID:  lesson.ID,
		TeacherID: lesson.TeacherID,
		StudentID: lesson.StudentID,
	}
	c.send(lesson.StudentID, types.EventIdentityExchange, identity)
	c.send(lesson.TeacherID, types.EventIdentityExchange, identity)

	c.logger.Info("lesson started", "lesson", lesson.ID,
		"teacher", lesson.TeacherID, "student", lesson.StudentID)
	return lesson
}

// lessonFor returns the active lesson containing the given participant, or
// nil. The lessons map holds only active lessons, so membership is enough.
func (c *Coordinator) lessonFor(peerID string) *types.Lesson {
	for _, lesson := range c.lessons {
		if lesson.TeacherID == peerID || lesson.StudentID == peerID {
			return lesson
		}
	}
	return nil
}

// endLessonFor handles an explicit end_session from either participant.
func (c *Coordinator) endLessonFor(peerID string) {
	lesson := c.lessonFor(peerID)
	if lesson == nil {
		return
	}
	c.endLesson(lesson, types.ReasonPeerEnded, peerID)
}

// expireLesson is the countdown trigger. By the time it runs the lesson may
// already be gone; first end wins.
func (c *Coordinator) expireLesson(lessonID string) {
	lesson, ok := c.lessons[lessonID]
	if !ok {
		return
	}
	c.endLesson(lesson, types.ReasonTimerExpired, "")
}

// endLesson moves a lesson to ended exactly once, notifies the survivor(s),
// promotes the next waiting student for this teacher, and republishes stats.
// initiatorID is excluded from the session_ended notification; the timer has
// no initiator, so expiry notifies both parties.
func (c *Coordinator) endLesson(lesson *types.Lesson, reason, initiatorID string) {
	if lesson.Status == types.LessonEnded {
		return
	}
	lesson.Status = types.LessonEnded
	delete(c.lessons, lesson.ID)

	if timer, ok := c.timers[lesson.ID]; ok {
		timer.Stop()
		delete(c.timers, lesson.ID)
	}

	ended := types.SessionEndedPayload{Reason: reason}
	if lesson.TeacherID != initiatorID {
		c.send(lesson.TeacherID, types.EventSessionEnded, ended)
	}
	if lesson.StudentID != initiatorID {
		c.send(lesson.StudentID, types.EventSessionEnded, ended)
	}
	c.logger.Info("lesson ended", "lesson", lesson.ID, "reason", reason)

	c.promoteNext(lesson.TeacherID)
	c.broadcastStats()
}

// promoteNext is the cascading dispatch: the earliest waiting student for the
// teacher gets the next lesson. If the teacher has dropped their presence the
// queue is left untouched; service is best effort, not guaranteed.
func (c *Coordinator) promoteNext(teacherID string) {
	teacher, online := c.presence[teacherID]
	if !online {
		return
	}
	for {
		next := c.dequeueFor(teacherID)
		if next == nil {
			return
		}
		// A waiting entry can go stale if its student found a lesson some
		// other way; promoting it would hand them a second one.
		if c.lessonFor(next.StudentID) != nil {
			c.logger.Warn("dropping stale queue entry",
				"teacher", teacherID, "student", next.StudentID)
			continue
		}
		c.logger.Info("promoting queued student", "teacher", teacherID, "student", next.StudentID)
		c.startLesson(teacher, next)
		return
	}
}

func (c *Coordinator) estimateWait(position int) string {
	minutes := position * int(c.cfg.LessonDuration.Round(time.Minute)/time.Minute)
	if minutes <= 0 {
		minutes = 1
	}
	return fmt.Sprintf("about %d minutes", minutes)
}
