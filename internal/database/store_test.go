package database_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tatami/internal/database"
	"tatami/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func openTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "evaluations.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func evaluation(evaluatorID string, rating int) *types.Evaluation {
	return &types.Evaluation{
		EvaluatorID:   evaluatorID,
		EvaluatorRole: types.RoleStudent,
		EvaluatorName: "Ken",
		TargetID:      "teacher-1",
		TargetRole:    types.RoleTeacher,
		TargetName:    "Yamada",
		Rating:        rating,
		Comment:       "great lesson",
		Timestamp:     "2026-08-28T10:00:00Z",
	}
}

func TestInsertAndListEvaluations(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := evaluation("student-1", 5)
	require.NoError(t, store.InsertEvaluation(ctx, first))
	assert.NotZero(t, first.ID)

	second := evaluation("student-2", 3)
	require.NoError(t, store.InsertEvaluation(ctx, second))
	assert.Greater(t, second.ID, first.ID)

	evaluations, err := store.EvaluationsForTarget(ctx, "teacher-1", types.RoleTeacher)
	require.NoError(t, err)
	require.Len(t, evaluations, 2)

	byEvaluator := map[string]*types.Evaluation{}
	for _, ev := range evaluations {
		byEvaluator[ev.EvaluatorID] = ev
	}
	require.Contains(t, byEvaluator, "student-1")
	require.Contains(t, byEvaluator, "student-2")
	assert.Equal(t, 5, byEvaluator["student-1"].Rating)
	assert.Equal(t, "great lesson", byEvaluator["student-1"].Comment)
	assert.Equal(t, "Yamada", byEvaluator["student-1"].TargetName)
}

func TestInsertRejectsInvalidEvaluation(t *testing.T) {
	store := openTestStore(t)

	ev := evaluation("student-1", 0)
	assert.ErrorIs(t, store.InsertEvaluation(context.Background(), ev), types.ErrInvalidRating)

	ev = evaluation("student-1", 4)
	ev.TargetRole = "admin"
	assert.ErrorIs(t, store.InsertEvaluation(context.Background(), ev), types.ErrInvalidRole)
}

func TestEvaluationsScopedToTargetRole(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	asTeacher := evaluation("student-1", 5)
	require.NoError(t, store.InsertEvaluation(ctx, asTeacher))

	// Same id rated in the student role must not leak into the teacher list.
	asStudent := evaluation("teacher-9", 2)
	asStudent.TargetRole = types.RoleStudent
	asStudent.EvaluatorRole = types.RoleTeacher
	require.NoError(t, store.InsertEvaluation(ctx, asStudent))

	teacherEvals, err := store.EvaluationsForTarget(ctx, "teacher-1", types.RoleTeacher)
	require.NoError(t, err)
	assert.Len(t, teacherEvals, 1)

	studentEvals, err := store.EvaluationsForTarget(ctx, "teacher-1", types.RoleStudent)
	require.NoError(t, err)
	assert.Len(t, studentEvals, 1)
}

func TestRatingSummary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertEvaluation(ctx, evaluation("student-1", 5)))
	require.NoError(t, store.InsertEvaluation(ctx, evaluation("student-2", 4)))
	require.NoError(t, store.InsertEvaluation(ctx, evaluation("student-3", 4)))

	summary, err := store.RatingSummaryForTarget(ctx, "teacher-1", types.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", summary.TargetID)
	assert.Equal(t, 3, summary.TotalRatings)
	assert.InDelta(t, 4.33, summary.AverageRating, 0.001)
}

func TestRatingSummaryEmptyTarget(t *testing.T) {
	store := openTestStore(t)

	summary, err := store.RatingSummaryForTarget(context.Background(), "nobody", types.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalRatings)
	assert.Zero(t, summary.AverageRating)
}

func TestHealthCheck(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestCloseIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err := store.InsertEvaluation(context.Background(), evaluation("student-1", 5))
	assert.ErrorIs(t, err, database.ErrClosed)
}
