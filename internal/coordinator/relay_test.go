package coordinator_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tatami/internal/coordinator"
	"tatami/pkg/types"
)

func startLessonPair(t *testing.T, c *coordinator.Coordinator) (teacher, student *fakePeer) {
	t.Helper()
	teacher = connect(t, c, "teacher-1")
	becomeAvailable(t, c, teacher, "Yamada")
	student = connect(t, c, "student-1")
	requestSession(t, c, student, teacher.id, "Ken")
	flush(t, c)
	return teacher, student
}

func TestChatRelayWithinLesson(t *testing.T) {
	c := newTestCoordinator(t, coordinator.DefaultConfig())
	teacher, student := startLessonPair(t, c)

	payload := map[string]string{"text": "konnichiwa"}
	dispatch(t, c, student.id, types.EventChatMessage, payload)
	flush(t, c)

	messages := teacher.eventsOfType(types.EventChatMessage)
	require.Len(t, messages, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(messages[0].Payload, &got))
	assert.Equal(t, "konnichiwa", got["text"])

	// The sender does not receive an echo.
	assert.Empty(t, student.eventsOfType(types.EventChatMessage))
}

func TestChatWithoutLessonIsDropped(t *testing.T) {
	c := newTestCoordinator(t, coordinator.DefaultConfig())

	teacher := connect(t, c, "teacher-1")
	becomeAvailable(t, c, teacher, "Yamada")
	stranger := connect(t, c, "stranger")
	flush(t, c)

	dispatch(t, c, stranger.id, types.EventChatMessage, map[string]string{"text": "hello?"})
	flush(t, c)

	assert.Empty(t, teacher.eventsOfType(types.EventChatMessage))
	assert.Empty(t, stranger.eventsOfType(types.EventRequestError))
}

func TestChatRateLimit(t *testing.T) {
	cfg := coordinator.DefaultConfig()
	cfg.ChatRateLimit = 3
	cfg.ChatRateWindow = time.Minute
	c := newTestCoordinator(t, cfg)
	teacher, student := startLessonPair(t, c)

	for i := 0; i < 5; i++ {
		dispatch(t, c, student.id, types.EventChatMessage, map[string]string{"text": "spam"})
	}
	flush(t, c)

	assert.Len(t, teacher.eventsOfType(types.EventChatMessage), 3)
}

func TestCallSignalsForwardedToTarget(t *testing.T) {
	c := newTestCoordinator(t, coordinator.DefaultConfig())
	teacher, student := startLessonPair(t, c)

	for _, eventType := range []string{
		types.EventCallOffer,
		types.EventCallAnswer,
		types.EventICECandidate,
		types.EventRejectCall,
		types.EventEndCall,
	} {
		data, err := json.Marshal(map[string]string{"sdp": "blob"})
		require.NoError(t, err)
		dispatch(t, c, student.id, eventType, types.SignalPayload{
			Target: teacher.id,
			Data:   data,
		})
	}
	flush(t, c)

	offers := teacher.eventsOfType(types.EventCallOffer)
	require.Len(t, offers, 1)
	var signal types.SignalPayload
	require.NoError(t, json.Unmarshal(offers[0].Payload, &signal))
	assert.Equal(t, student.id, signal.From)
	assert.JSONEq(t, `{"sdp":"blob"}`, string(signal.Data))

	for _, eventType := range []string{
		types.EventCallAnswer,
		types.EventICECandidate,
		types.EventRejectCall,
		types.EventEndCall,
	} {
		assert.Len(t, teacher.eventsOfType(eventType), 1, eventType)
	}
}

func TestCallSignalMissingTargetDropped(t *testing.T) {
	c := newTestCoordinator(t, coordinator.DefaultConfig())
	teacher, student := startLessonPair(t, c)

	dispatch(t, c, student.id, types.EventCallOffer, types.SignalPayload{})
	flush(t, c)

	assert.Empty(t, teacher.eventsOfType(types.EventCallOffer))
}

func TestVoiceSignalRequiresSharedLesson(t *testing.T) {
	c := newTestCoordinator(t, coordinator.DefaultConfig())
	teacher, student := startLessonPair(t, c)
	outsider := connect(t, c, "outsider")
	flush(t, c)

	data, err := json.Marshal(map[string]string{"candidate": "x"})
	require.NoError(t, err)

	dispatch(t, c, student.id, types.EventVoiceSignal, types.SignalPayload{
		Target: teacher.id,
		Data:   data,
	})
	dispatch(t, c, outsider.id, types.EventVoiceSignal, types.SignalPayload{
		Target: teacher.id,
		Data:   data,
	})
	flush(t, c)

	signals := teacher.eventsOfType(types.EventVoiceSignal)
	require.Len(t, signals, 1)
	var signal types.SignalPayload
	require.NoError(t, json.Unmarshal(signals[0].Payload, &signal))
	assert.Equal(t, student.id, signal.From)
}

func TestUnknownEventIgnored(t *testing.T) {
	c := newTestCoordinator(t, coordinator.DefaultConfig())
	teacher, student := startLessonPair(t, c)

	dispatch(t, c, student.id, "no_such_event", map[string]string{"x": "y"})
	stats := flush(t, c)

	assert.Equal(t, 1, stats.ActiveLessons)
	assert.Empty(t, teacher.eventsOfType("no_such_event"))
}
