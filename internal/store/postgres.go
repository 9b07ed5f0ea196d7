package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/futureself-ai/futureself/internal/call"
	"github.com/futureself-ai/futureself/pkg/logging"
)

var storeTracer = otel.Tracer("futureself/postgres-store")

// PgxIface is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const recentCallWindow = 14

// PostgresStore implements call.UserStore on Postgres. Memory and analytics
// payloads are stored as jsonb; excuse stats are one row per pattern.
type PostgresStore struct {
	db     PgxIface
	logger *logging.Logger
}

func NewPostgresStore(db PgxIface, logger *logging.Logger) *PostgresStore {
	if db == nil {
		panic("store: postgres store requires a connection pool")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// GetUserContext loads the user row plus their recent call history.
func (s *PostgresStore) GetUserContext(ctx context.Context, userID string) (call.UserContext, error) {
	ctx, span := storeTracer.Start(ctx, "store.get_user_context")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	var (
		uc             call.UserContext
		onboardingJSON []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(phone, ''), daily_commitment, current_streak,
		       COALESCE(goal, ''), COALESCE(voice_id, ''), COALESCE(onboarding, '{}'::jsonb)
		FROM users WHERE id = $1`, userID).Scan(
		&uc.UserID, &uc.Name, &uc.Phone, &uc.DailyCommitment, &uc.CurrentStreak,
		&uc.Goal, &uc.VoiceID, &onboardingJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return call.UserContext{}, fmt.Errorf("store: user %s not found", userID)
	}
	if err != nil {
		span.RecordError(err)
		return call.UserContext{}, fmt.Errorf("store: get user context: %w", err)
	}

	if len(onboardingJSON) > 0 {
		if err := json.Unmarshal(onboardingJSON, &uc.Onboarding); err != nil {
			s.logger.Warn("onboarding profile unmarshal failed", "user_id", userID, "error", err)
		}
	}

	recent, err := s.recentCalls(ctx, userID)
	if err != nil {
		// History is an enrichment; the call proceeds without it.
		s.logger.Warn("recent call history read failed", "user_id", userID, "error", err)
	}
	uc.RecentCalls = recent
	return uc, nil
}

func (s *PostgresStore) recentCalls(ctx context.Context, userID string) ([]call.CallRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT promise_kept, COALESCE(tomorrow_commitment, ''), created_at, call_type
		FROM call_analytics
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, recentCallWindow)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []call.CallRecord
	for rows.Next() {
		var r call.CallRecord
		if err := rows.Scan(&r.PromiseKept, &r.Commitment, &r.Timestamp, &r.CallType); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetCallMemory returns the user's long-lived memory, zero-valued when the
// user has never been called.
func (s *PostgresStore) GetCallMemory(ctx context.Context, userID string) (call.CallMemory, error) {
	ctx, span := storeTracer.Start(ctx, "store.get_call_memory")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT memory FROM call_memories WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return call.CallMemory{}, nil
	}
	if err != nil {
		span.RecordError(err)
		return call.CallMemory{}, fmt.Errorf("store: get call memory: %w", err)
	}
	var mem call.CallMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		return call.CallMemory{}, fmt.Errorf("store: call memory unmarshal: %w", err)
	}
	return mem, nil
}

// PutCallMemory overwrites the user's memory. Idempotent on payload.
func (s *PostgresStore) PutCallMemory(ctx context.Context, userID string, mem call.CallMemory) error {
	ctx, span := storeTracer.Start(ctx, "store.put_call_memory")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("store: call memory marshal: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO call_memories (user_id, memory, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET memory = EXCLUDED.memory, updated_at = now()`,
		userID, data)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: put call memory: %w", err)
	}
	return nil
}

// GetExcuseHistory loads the per-pattern ledger.
func (s *PostgresStore) GetExcuseHistory(ctx context.Context, userID string) (call.ExcuseHistory, error) {
	ctx, span := storeTracer.Start(ctx, "store.get_excuse_history")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT pattern, times_total, times_this_week, days_used, is_favorite
		FROM excuse_history WHERE user_id = $1`, userID)
	if err != nil {
		span.RecordError(err)
		return call.ExcuseHistory{}, fmt.Errorf("store: get excuse history: %w", err)
	}
	defer rows.Close()

	hist := call.ExcuseHistory{Patterns: make(map[call.ExcusePattern]call.ExcuseStat)}
	for rows.Next() {
		var stat call.ExcuseStat
		if err := rows.Scan(&stat.Pattern, &stat.TimesTotal, &stat.TimesThisWeek, &stat.DaysUsed, &stat.IsFavorite); err != nil {
			return call.ExcuseHistory{}, fmt.Errorf("store: scan excuse stat: %w", err)
		}
		hist.Patterns[stat.Pattern] = stat
	}
	if err := rows.Err(); err != nil {
		return call.ExcuseHistory{}, fmt.Errorf("store: read excuse history: %w", err)
	}
	return hist, nil
}

// AppendCallAnalytics writes the call's one analytics row. Re-inserting the
// same row id is a no-op.
func (s *PostgresStore) AppendCallAnalytics(ctx context.Context, row call.CallAnalytics) error {
	ctx, span := storeTracer.Start(ctx, "store.append_call_analytics")
	span.SetAttributes(attribute.String("call.id", row.ID), attribute.String("user.id", row.UserID))
	defer span.End()

	trajectory, err := json.Marshal(row.SentimentTrajectory)
	if err != nil {
		return fmt.Errorf("store: trajectory marshal: %w", err)
	}
	excuses, err := json.Marshal(row.ExcusesDetected)
	if err != nil {
		return fmt.Errorf("store: excuses marshal: %w", err)
	}
	quotes, err := json.Marshal(row.QuotesCaptured)
	if err != nil {
		return fmt.Errorf("store: quotes marshal: %w", err)
	}

	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO call_analytics (
			id, user_id, call_type, mood, duration_seconds, quality_score,
			promise_kept, tomorrow_commitment, commitment_time, commitment_is_specific,
			sentiment_trajectory, excuses_detected, quotes_captured, transcript_summary, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO NOTHING`,
		row.ID, row.UserID, row.CallType, row.Mood, row.DurationSeconds, row.QualityScore,
		row.PromiseKept, row.TomorrowCommitment, row.CommitmentTime, row.CommitmentIsSpecific,
		trajectory, excuses, quotes, row.TranscriptSummary, createdAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: append call analytics: %w", err)
	}
	return nil
}

// RecordExcusePatterns folds one call's detected excuses into the ledger.
func (s *PostgresStore) RecordExcusePatterns(ctx context.Context, userID string, excuses []call.DetectedExcuse) error {
	ctx, span := storeTracer.Start(ctx, "store.record_excuse_patterns")
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("excuse.count", len(excuses)))
	defer span.End()

	for _, ex := range excuses {
		_, err := s.db.Exec(ctx, `
			INSERT INTO excuse_history (user_id, pattern, times_total, times_this_week, days_used, is_favorite, last_used_at)
			VALUES ($1, $2, 1, 1, 1, $3, now())
			ON CONFLICT (user_id, pattern) DO UPDATE SET
				times_total = excuse_history.times_total + 1,
				times_this_week = CASE
					WHEN excuse_history.last_used_at > now() - interval '7 days'
					THEN excuse_history.times_this_week + 1 ELSE 1 END,
				days_used = excuse_history.days_used + CASE
					WHEN excuse_history.last_used_at::date = now()::date THEN 0 ELSE 1 END,
				is_favorite = EXCLUDED.is_favorite,
				last_used_at = now()`,
			userID, ex.Pattern, ex.MatchesFavorite)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("store: record excuse %s: %w", ex.Pattern, err)
		}
	}
	return nil
}
