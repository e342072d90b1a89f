package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tatami/pkg/types"
)

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("evaluation store closed")

// Store is the durable evaluation store. Clients write ratings here directly
// after a lesson ends; the coordination core never touches it. Writes funnel
// through a single goroutine, which is how SQLite stays contention-free,
// while reads run concurrently against the pool.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.Mutex
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	evaluator_id TEXT NOT NULL,
	evaluator_role TEXT NOT NULL,
	evaluator_name TEXT NOT NULL,
	target_id TEXT NOT NULL,
	target_role TEXT NOT NULL,
	target_name TEXT NOT NULL,
	rating INTEGER NOT NULL CHECK(rating >= 1 AND rating <= 5),
	comment TEXT,
	timestamp TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_evaluations_target ON evaluations(target_id, target_role);
`

// Open opens (and if needed creates) the store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Second)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   logger,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writeCh:
			op.result <- op.fn(s.db)
		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(fn func(*sql.DB) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{fn: fn, result: result}:
		return <-result
	case <-s.shutdown:
		return ErrClosed
	case <-time.After(30 * time.Second):
		return errors.New("write operation timeout")
	}
}

// InsertEvaluation stores one rating record and fills in its row id.
func (s *Store) InsertEvaluation(ctx context.Context, ev *types.Evaluation) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO evaluations
			(evaluator_id, evaluator_role, evaluator_name, target_id, target_role, target_name, rating, comment, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.EvaluatorID, ev.EvaluatorRole, ev.EvaluatorName,
			ev.TargetID, ev.TargetRole, ev.TargetName,
			ev.Rating, ev.Comment, ev.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read insert id: %w", err)
		}
		ev.ID = id
		s.logger.Info("evaluation stored", "id", id,
			"target", ev.TargetID, "rating", ev.Rating)
		return nil
	})
}

// EvaluationsForTarget lists a target's rating records, newest first.
func (s *Store) EvaluationsForTarget(ctx context.Context, targetID, targetRole string) ([]*types.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, evaluator_id, evaluator_role, evaluator_name,
		       target_id, target_role, target_name, rating, comment, timestamp, created_at
		FROM evaluations
		WHERE target_id = ? AND target_role = ?
		ORDER BY created_at DESC`,
		targetID, targetRole,
	)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var evaluations []*types.Evaluation
	for rows.Next() {
		var ev types.Evaluation
		var comment sql.NullString
		if err := rows.Scan(
			&ev.ID, &ev.EvaluatorID, &ev.EvaluatorRole, &ev.EvaluatorName,
			&ev.TargetID, &ev.TargetRole, &ev.TargetName,
			&ev.Rating, &comment, &ev.Timestamp, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		if comment.Valid {
			ev.Comment = comment.String
		}
		evaluations = append(evaluations, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation rows: %w", err)
	}
	return evaluations, nil
}

// RatingSummaryForTarget aggregates a target's ratings. A target with no
// ratings yields zero values rather than an error.
func (s *Store) RatingSummaryForTarget(ctx context.Context, targetID, targetRole string) (*types.RatingSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(ROUND(AVG(rating), 2), 0)
		FROM evaluations
		WHERE target_id = ? AND target_role = ?`,
		targetID, targetRole,
	)
	summary := &types.RatingSummary{TargetID: targetID}
	if err := row.Scan(&summary.TotalRatings, &summary.AverageRating); err != nil {
		return nil, fmt.Errorf("query rating summary: %w", err)
	}
	return summary, nil
}

// HealthCheck verifies connectivity and basic readability.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evaluations").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the writer and closes the pool. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
