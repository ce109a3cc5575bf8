package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RecentWindowOldestFirst(t *testing.T) {
	log := NewLog(NewMemoryStore(), 3, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		role := RoleUser
		if i%2 == 0 {
			role = RoleAssistant
		}
		_, err := log.Append(ctx, "+51900000001", role, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}

	window, err := log.RecentWindow(ctx, "+51900000001", 0)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "m3"},
		{Role: RoleAssistant, Content: "m4"},
		{Role: RoleUser, Content: "m5"},
	}, window)

	all, err := log.RecentWindow(ctx, "+51900000001", 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "m1", all[0].Content)
}

func TestLog_WindowReflectsLaterAppends(t *testing.T) {
	log := NewLog(NewMemoryStore(), 10, nil)
	ctx := context.Background()

	_, err := log.Append(ctx, "+51900000002", RoleUser, "Hola", nil)
	require.NoError(t, err)
	before, err := log.RecentWindow(ctx, "+51900000002", 10)
	require.NoError(t, err)

	_, err = log.Append(ctx, "+51900000002", RoleAssistant, "¡Hola! ¿En qué te ayudo?", nil)
	require.NoError(t, err)
	after, err := log.RecentWindow(ctx, "+51900000002", 10)
	require.NoError(t, err)

	assert.Len(t, before, 1)
	assert.Len(t, after, 2)

	empty, err := log.RecentWindow(ctx, "+51000000000", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLog_TimestampsStrictlyIncrease(t *testing.T) {
	log := NewLog(NewMemoryStore(), 10, nil)
	frozen := time.Date(2025, 11, 23, 10, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return frozen }
	ctx := context.Background()

	a, err := log.Append(ctx, "+51900000003", RoleUser, "a", map[string]any{"message_id": "m1"})
	require.NoError(t, err)
	b, err := log.Append(ctx, "+51900000003", RoleAssistant, "b", nil)
	require.NoError(t, err)

	assert.True(t, b.CreatedAt.After(a.CreatedAt))
	assert.Equal(t, "m1", a.Metadata["message_id"])

	history, err := log.History(ctx, "+51900000003")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, a.ID, history[0].ID)
	assert.Equal(t, b.ID, history[1].ID)
}

func TestLog_AppendValidation(t *testing.T) {
	log := NewLog(NewMemoryStore(), 10, nil)
	ctx := context.Background()

	_, err := log.Append(ctx, "", RoleUser, "x", nil)
	assert.Error(t, err)

	_, err = log.Append(ctx, "+51900000004", Role("system"), "x", nil)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

type failingStore struct{ *MemoryStore }

func (f *failingStore) Append(ctx context.Context, turn *Turn) error {
	return errors.New("disk full")
}

func TestLog_AppendPropagatesStoreError(t *testing.T) {
	log := NewLog(&failingStore{MemoryStore: NewMemoryStore()}, 10, nil)
	_, err := log.Append(context.Background(), "+51900000005", RoleUser, "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestMemoryStore_KeepsCreationOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, &Turn{ID: "b", ContactID: "c", CreatedAt: base.Add(2)}))
	require.NoError(t, store.Append(ctx, &Turn{ID: "a", ContactID: "c", CreatedAt: base.Add(1)}))

	all, err := store.All(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}
