package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSlots struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func newMemSlots() *memSlots { return &memSlots{tokens: map[string]string{}} }

func (m *memSlots) SetRefreshToken(_ context.Context, id, token string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = token
	return nil
}

func (m *memSlots) GetRefreshToken(_ context.Context, id string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[id], nil
}

func (m *memSlots) ClearRefreshToken(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = ""
	return nil
}

func (m *memSlots) SwapRefreshToken(_ context.Context, id, expected, next string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens[id] != expected {
		return false, nil
	}
	m.tokens[id] = next
	return true, nil
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMemSlots())

	_, ok, err := s.Current(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetCurrent(ctx, "u1", "T1"))
	tok, ok, err := s.Current(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T1", tok)

	require.NoError(t, s.Rotate(ctx, "u1", "T1", "T2"))
	tok, _, _ = s.Current(ctx, "u1")
	assert.Equal(t, "T2", tok)

	require.NoError(t, s.Clear(ctx, "u1"))
	require.NoError(t, s.Clear(ctx, "u1"))
	_, ok, err = s.Current(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RotateStaleToken(t *testing.T) {
	ctx := context.Background()
	slots := newMemSlots()
	s := NewStore(slots)
	require.NoError(t, s.SetCurrent(ctx, "u1", "T2"))

	err := s.Rotate(ctx, "u1", "T1", "T3")
	assert.ErrorIs(t, err, common.ErrTokenReuseDetected)
	assert.Equal(t, "T2", slots.tokens["u1"])
}

func TestStore_RotateWithoutSession(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMemSlots())

	assert.ErrorIs(t, s.Rotate(ctx, "u1", "", "T1"), common.ErrTokenReuseDetected)
	assert.ErrorIs(t, s.Rotate(ctx, "u1", "T1", "T2"), common.ErrTokenReuseDetected)
}

func TestStore_RotateIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMemSlots())
	require.NoError(t, s.SetCurrent(ctx, "u1", "T1"))

	var wins, reuses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Rotate(ctx, "u1", "T1", string(rune('A'+i)))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, common.ErrTokenReuseDetected):
				reuses.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), reuses.Load())
}

func TestStore_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	slots := newMemSlots()
	slots.err = boom
	s := NewStore(slots)

	assert.ErrorIs(t, s.SetCurrent(ctx, "u1", "T"), boom)
	_, _, err := s.Current(ctx, "u1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Clear(ctx, "u1"), boom)
	assert.ErrorIs(t, s.Rotate(ctx, "u1", "T", "U"), boom)
}
