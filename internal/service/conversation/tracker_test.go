package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeConsumesExactlyOnce(t *testing.T) {
	tr := NewTracker()
	tr.Begin(1, KindAwaitMuteSpec, "")

	p, ok := tr.Take(1)
	require.True(t, ok)
	assert.Equal(t, KindAwaitMuteSpec, p.Kind)

	// Второй Take ничего не находит: действие уже потреблено
	_, ok = tr.Take(1)
	assert.False(t, ok)
}

func TestBeginReplacesPrevious(t *testing.T) {
	tr := NewTracker()
	tr.Begin(1, KindAwaitBanTarget, "")
	tr.Begin(1, KindAwaitBroadcast, "")

	p, ok := tr.Take(1)
	require.True(t, ok)
	assert.Equal(t, KindAwaitBroadcast, p.Kind)
}

func TestKeepRestoresForRetry(t *testing.T) {
	tr := NewTracker()
	tr.Begin(1, KindAwaitMuteSpec, "@target")

	p, ok := tr.Take(1)
	require.True(t, ok)

	tr.Keep(1, p)
	restored, ok := tr.Peek(1)
	require.True(t, ok)
	assert.Equal(t, p, restored)
}

func TestCancelIsUnconditional(t *testing.T) {
	tr := NewTracker()

	assert.False(t, tr.Cancel(1), "nothing pending")

	tr.Begin(1, KindAwaitImpersonate, "")
	assert.True(t, tr.Cancel(1))
	_, ok := tr.Peek(1)
	assert.False(t, ok)
}

func TestPendingIsPerUser(t *testing.T) {
	tr := NewTracker()
	tr.Begin(1, KindAwaitBanTarget, "")
	tr.Begin(2, KindAwaitBroadcast, "")

	p1, _ := tr.Take(1)
	p2, _ := tr.Take(2)
	assert.Equal(t, KindAwaitBanTarget, p1.Kind)
	assert.Equal(t, KindAwaitBroadcast, p2.Kind)
}
