package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue_List_FIFO(t *testing.T) {
	s := createTestStore(t, WithNow(fixedNow()))
	ctx := t.Context()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Enqueue(ctx, Envelope{ID: id, Payload: json.RawMessage(`{"id":"` + id + `"}`)}))
	}

	envs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 3)
	assert.Equal(t, "c", envs[0].ID, "order follows enqueue, not id")
	assert.Equal(t, "a", envs[1].ID)
	assert.Equal(t, "b", envs[2].ID)
	assert.JSONEq(t, `{"id":"c"}`, string(envs[0].Payload))
	assert.Equal(t, 0, envs[0].Attempts)
	assert.True(t, envs[0].EnqueuedAt.Equal(fixedNow()()))
}

func TestList_Empty(t *testing.T) {
	s := createTestStore(t)

	envs, err := s.List(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, envs)
	assert.Empty(t, envs)
}

func TestEnqueue_KeepsExplicitTimestamp(t *testing.T) {
	s := createTestStore(t)
	at := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Enqueue(t.Context(), Envelope{ID: "e", Payload: []byte(`1`), EnqueuedAt: at}))

	envs, err := s.List(t.Context())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.True(t, envs[0].EnqueuedAt.Equal(at))
}

func TestEnqueue_DuplicateIDLeavesBacklogIntact(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.Enqueue(ctx, Envelope{ID: "dup", Payload: []byte(`{"v":1}`)}))
	err := s.Enqueue(ctx, Envelope{ID: "dup", Payload: []byte(`{"v":2}`)})
	require.Error(t, err)

	envs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.JSONEq(t, `{"v":1}`, string(envs[0].Payload))
}

func TestEnqueue_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	assert.Error(t, s.Enqueue(ctx, Envelope{Payload: []byte(`{}`)}), "missing id")
	assert.Error(t, s.Enqueue(ctx, Envelope{ID: "x", Payload: []byte(`{`)}), "invalid JSON")
	assert.Error(t, s.Enqueue(ctx, Envelope{ID: "y", Payload: []byte(`{}`), Attempts: -1}), "negative attempts")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEnqueue_ClosedStoreFails(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Close())

	err := s.Enqueue(t.Context(), Envelope{ID: "e", Payload: []byte(`{}`)})
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.Enqueue(ctx, Envelope{ID: "a", Payload: []byte(`{}`)}))
	require.NoError(t, s.Enqueue(ctx, Envelope{ID: "b", Payload: []byte(`{}`)}))

	require.NoError(t, s.Remove(ctx, "a"))

	err := s.Remove(ctx, "a")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	envs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "b", envs[0].ID)
}

func TestMarkAttempt(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.Enqueue(ctx, Envelope{ID: "a", Payload: []byte(`{}`)}))

	n, err := s.MarkAttempt(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.MarkAttempt(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.MarkAttempt(ctx, "missing")
	assert.True(t, IsNotFound(err))
}
