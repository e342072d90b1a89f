package types

import (
	"time"
)

// Participant roles. A connection that has not yet declared itself (a student
// browsing the teacher list, for example) has no role.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Lesson status values. A lesson moves from active to ended exactly once.
const (
	LessonActive = "active"
	LessonEnded  = "ended"
)

// Reasons delivered with session_ended so clients can distinguish a normal
// end from a timer cutoff or a vanished peer.
const (
	ReasonPeerEnded        = "peer_ended"
	ReasonTimerExpired     = "timer_expired"
	ReasonPeerDisconnected = "peer_disconnected"
)

// DefaultLessonDuration is the fixed lesson length.
const DefaultLessonDuration = 15 * time.Minute

// TeacherPresence is an online teacher's advertised card. TeacherID is the
// logical connection id; presence does not survive a disconnect.
type TeacherPresence struct {
	TeacherID   string    `json:"teacherId"`
	Name        string    `json:"name"`
	Contact     string    `json:"contact,omitempty"`
	Proficiency string    `json:"proficiency,omitempty"`
	TimeSlot    string    `json:"timeSlot,omitempty"`
	OnlineAt    time.Time `json:"onlineAt"`
}

// QueuedStudent is one waiting queue entry, bound to the teacher the student
// asked for. A student id appears at most once across the whole queue.
type QueuedStudent struct {
	StudentID   string    `json:"studentId"`
	Name        string    `json:"name"`
	Level       string    `json:"level,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	TeacherID   string    `json:"teacherId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Lesson pairs one teacher and one student for a fixed duration. At most one
// active lesson may reference a given teacher id or student id.
type Lesson struct {
	ID           string        `json:"lessonId"`
	TeacherID    string        `json:"teacherId"`
	StudentID    string        `json:"studentId"`
	TeacherName  string        `json:"teacherName"`
	StudentName  string        `json:"studentName"`
	StudentLevel string        `json:"studentLevel,omitempty"`
	Topic        string        `json:"topic,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"-"`
	Status       string        `json:"status"`
}

// Stats is the derived aggregate broadcast after every mutating operation.
type Stats struct {
	OnlineTeachers  int `json:"onlineTeachers"`
	ActiveLessons   int `json:"activeLessons"`
	WaitingStudents int `json:"waitingStudents"`
}

// Evaluation is one rating record in the durable evaluation store. The store
// is written by clients after a lesson ends; the coordination core never
// touches it.
type Evaluation struct {
	ID            int64     `json:"id"`
	EvaluatorID   string    `json:"evaluatorId"`
	EvaluatorRole string    `json:"evaluatorRole"`
	EvaluatorName string    `json:"evaluatorName"`
	TargetID      string    `json:"targetId"`
	TargetRole    string    `json:"targetRole"`
	TargetName    string    `json:"targetName"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment,omitempty"`
	Timestamp     string    `json:"timestamp"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RatingSummary aggregates a target's ratings.
type RatingSummary struct {
	TargetID      string  `json:"targetId"`
	TotalRatings  int     `json:"totalRatings"`
	AverageRating float64 `json:"averageRating"`
}
