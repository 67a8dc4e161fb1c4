package login

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryPromoteEvictsOlderSession(t *testing.T) {
	r := NewRegistry()

	first := &Client{connID: 1, accountID: 7, phase: PhaseCompleted}
	second := &Client{connID: 2, accountID: 7, phase: PhaseCompleted}

	r.Add(first)
	r.Add(second)

	assert.Nil(t, r.Promote(first))
	assert.Same(t, first, r.Promote(second))

	current, ok := r.Authenticated(7)
	assert.True(t, ok)
	assert.Same(t, second, current)
}

func TestRegistryPromoteSameClientIsNoop(t *testing.T) {
	r := NewRegistry()
	c := &Client{connID: 1, accountID: 3, phase: PhaseCompleted}

	assert.Nil(t, r.Promote(c))
	assert.Nil(t, r.Promote(c))
}

func TestRegistryRemoveGuardsSuccessor(t *testing.T) {
	r := NewRegistry()

	evicted := &Client{connID: 1, accountID: 7}
	winner := &Client{connID: 2, accountID: 7}

	r.Add(evicted)
	r.Add(winner)
	r.Promote(evicted)
	r.Promote(winner)

	// The evicted session cleaning up must not remove the winner.
	r.Remove(evicted)

	current, ok := r.Authenticated(7)
	assert.True(t, ok)
	assert.Same(t, winner, current)

	processing, authenticated := r.Counts()
	assert.Equal(t, 1, processing)
	assert.Equal(t, 1, authenticated)
}

func TestRegistryDropProcessing(t *testing.T) {
	r := NewRegistry()
	c := &Client{connID: 5, accountID: 1}

	r.Add(c)
	r.Promote(c)
	r.DropProcessing(c)

	processing, authenticated := r.Counts()
	assert.Zero(t, processing)
	assert.Equal(t, 1, authenticated)

	assert.Len(t, r.AuthenticatedClients(), 1)
	assert.Empty(t, r.ProcessingClients())
}
