package threadsafe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashSet(t *testing.T) {
	set := NewHashSet[string]()

	assert.True(t, set.Add("T1"))
	assert.False(t, set.Add("T1"))
	assert.True(t, set.Contains("T1"))
	assert.Equal(t, 1, set.Len())

	assert.True(t, set.Remove("T1"))
	assert.False(t, set.Remove("T1"))
	assert.False(t, set.Contains("T1"))
	assert.Equal(t, 0, set.Len())
}
