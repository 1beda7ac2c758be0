package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	// Given: a subscription that counts cancellations
	updates := make(chan int, 1)
	calls := 0
	sub := NewSubscription[int](updates, func() {
		calls++
		close(updates)
	})

	// When: it is closed twice
	sub.Close()
	sub.Close()

	// Then: the producer is cancelled once and the stream is closed
	assert.Equal(t, 1, calls)
	_, ok := <-sub.Updates()
	assert.False(t, ok)
}

func TestGenerateEntryID_IsOrdered(t *testing.T) {
	// Given: two ids generated one after another
	first, err := GenerateEntryID()
	assert.NoError(t, err)
	second, err := GenerateEntryID()
	assert.NoError(t, err)

	// Then: they sort in generation order
	assert.Less(t, first, second)
}
