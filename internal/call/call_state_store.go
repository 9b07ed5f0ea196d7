package call

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LiveCallState tracks an active call in Redis so the webhook workers and
// the ops endpoints can see in-flight calls regardless of which process owns
// the session.
type LiveCallState struct {
	// CallID is the voice gateway's call control ID.
	CallID string `json:"call_id"`
	// UserID is the user being called.
	UserID string `json:"user_id"`
	// Phone is the user's phone in E.164.
	Phone string `json:"phone,omitempty"`
	// CallType is the shape chosen for this call.
	CallType CallType `json:"call_type"`
	// Status tracks the call lifecycle: ringing, active, ended.
	Status string `json:"status"`
	// Stage mirrors the session's current stage for observability.
	Stage string `json:"stage"`
	// TurnCount tracks how many back-and-forth exchanges have occurred.
	TurnCount int `json:"turn_count"`
	// StartedAt is when the call was answered.
	StartedAt time.Time `json:"started_at"`
	// LastActivityAt tracks the most recent interaction.
	LastActivityAt time.Time `json:"last_activity_at"`
	// Outcome records how the call ended: completed, hangup, ceiling, idle, cancelled.
	Outcome string `json:"outcome,omitempty"`
}

// LiveTranscriptEntry is a single turn in a live call transcript.
type LiveTranscriptEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	liveCallKeyPrefix       = "call:state:"
	liveTranscriptKeyPrefix = "call:transcript:"
	liveCallTTL             = 24 * time.Hour

	LiveCallStatusRinging = "ringing"
	LiveCallStatusActive  = "active"
	LiveCallStatusEnded   = "ended"
)

// LiveCallStore manages live call state in Redis.
type LiveCallStore struct {
	rdb *redis.Client
}

// NewLiveCallStore creates a live call store backed by Redis.
func NewLiveCallStore(rdb *redis.Client) *LiveCallStore {
	return &LiveCallStore{rdb: rdb}
}

func liveCallKey(callID string) string {
	return liveCallKeyPrefix + callID
}

func liveTranscriptKey(callID string) string {
	return liveTranscriptKeyPrefix + callID
}

// SaveCallState persists or updates live call state in Redis.
func (s *LiveCallStore) SaveCallState(ctx context.Context, state *LiveCallState) error {
	if state == nil || state.CallID == "" {
		return fmt.Errorf("live call state: call_id required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("live call state: marshal: %w", err)
	}
	return s.rdb.Set(ctx, liveCallKey(state.CallID), data, liveCallTTL).Err()
}

// GetCallState retrieves live call state from Redis. Returns nil when the
// call is unknown or expired.
func (s *LiveCallStore) GetCallState(ctx context.Context, callID string) (*LiveCallState, error) {
	data, err := s.rdb.Get(ctx, liveCallKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("live call state: get: %w", err)
	}
	var state LiveCallState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("live call state: unmarshal: %w", err)
	}
	return &state, nil
}

// RecordTurn increments the turn counter, refreshes activity and mirrors the
// session's current stage.
func (s *LiveCallStore) RecordTurn(ctx context.Context, callID string, stage CallStage) error {
	state, err := s.GetCallState(ctx, callID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("live call state: call %s not found", callID)
	}
	state.TurnCount++
	state.Stage = stage.String()
	state.LastActivityAt = time.Now().UTC()
	return s.SaveCallState(ctx, state)
}

// EndCall marks the call as ended with an outcome.
func (s *LiveCallStore) EndCall(ctx context.Context, callID, outcome string) error {
	state, err := s.GetCallState(ctx, callID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("live call state: call %s not found", callID)
	}
	state.Status = LiveCallStatusEnded
	state.Outcome = outcome
	state.LastActivityAt = time.Now().UTC()
	return s.SaveCallState(ctx, state)
}

// AppendTranscript adds a transcript entry to the live call log.
func (s *LiveCallStore) AppendTranscript(ctx context.Context, callID string, entry LiveTranscriptEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("live transcript: marshal: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, liveTranscriptKey(callID), data)
	pipe.Expire(ctx, liveTranscriptKey(callID), liveCallTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetTranscript retrieves the full live call transcript.
func (s *LiveCallStore) GetTranscript(ctx context.Context, callID string) ([]LiveTranscriptEntry, error) {
	data, err := s.rdb.LRange(ctx, liveTranscriptKey(callID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("live transcript: get: %w", err)
	}
	entries := make([]LiveTranscriptEntry, 0, len(data))
	for _, d := range data {
		var entry LiveTranscriptEntry
		if err := json.Unmarshal([]byte(d), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
