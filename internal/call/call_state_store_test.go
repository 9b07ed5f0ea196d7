package call

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLiveStore(t *testing.T) (*LiveCallStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLiveCallStore(rdb), mr
}

func TestLiveCallStoreSaveAndGet(t *testing.T) {
	store, mr := newLiveStore(t)
	ctx := context.Background()

	state := &LiveCallState{
		CallID:    "cc-1",
		UserID:    "user-1",
		Phone:     "+15555550100",
		CallType:  CallTypeAudit,
		Status:    LiveCallStatusRinging,
		Stage:     StageHook.String(),
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveCallState(ctx, state))

	got, err := store.GetCallState(ctx, "cc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, LiveCallStatusRinging, got.Status)

	ttl := mr.TTL("call:state:cc-1")
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestLiveCallStoreGetUnknownReturnsNil(t *testing.T) {
	store, _ := newLiveStore(t)
	got, err := store.GetCallState(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLiveCallStoreSaveRejectsEmptyCallID(t *testing.T) {
	store, _ := newLiveStore(t)
	assert.Error(t, store.SaveCallState(context.Background(), &LiveCallState{}))
	assert.Error(t, store.SaveCallState(context.Background(), nil))
}

func TestLiveCallStoreRecordTurn(t *testing.T) {
	store, _ := newLiveStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCallState(ctx, &LiveCallState{
		CallID: "cc-1", Status: LiveCallStatusActive,
	}))
	require.NoError(t, store.RecordTurn(ctx, "cc-1", StageAccountability))
	require.NoError(t, store.RecordTurn(ctx, "cc-1", StageDigDeeper))

	got, err := store.GetCallState(ctx, "cc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnCount)
	assert.Equal(t, "dig_deeper", got.Stage)
	assert.False(t, got.LastActivityAt.IsZero())

	assert.Error(t, store.RecordTurn(ctx, "missing", StageHook))
}

func TestLiveCallStoreEndCall(t *testing.T) {
	store, _ := newLiveStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCallState(ctx, &LiveCallState{
		CallID: "cc-1", Status: LiveCallStatusActive,
	}))
	require.NoError(t, store.EndCall(ctx, "cc-1", EndReasonHangup))

	got, err := store.GetCallState(ctx, "cc-1")
	require.NoError(t, err)
	assert.Equal(t, LiveCallStatusEnded, got.Status)
	assert.Equal(t, EndReasonHangup, got.Outcome)

	assert.Error(t, store.EndCall(ctx, "missing", EndReasonHangup))
}

func TestLiveCallStoreTranscript(t *testing.T) {
	store, mr := newLiveStore(t)
	ctx := context.Background()

	entries := []LiveTranscriptEntry{
		{Role: "assistant", Text: "Hey! You made it.", Timestamp: time.Now().UTC()},
		{Role: "user", Text: "yeah, did the run", Timestamp: time.Now().UTC()},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendTranscript(ctx, "cc-1", e))
	}

	got, err := store.GetTranscript(ctx, "cc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "assistant", got[0].Role)
	assert.Equal(t, "yeah, did the run", got[1].Text)

	assert.Equal(t, 24*time.Hour, mr.TTL("call:transcript:cc-1"))

	empty, err := store.GetTranscript(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
