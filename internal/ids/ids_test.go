package ids

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7_UniqueAndValid(t *testing.T) {
	gen := UUIDv7{}
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen.NewID()
		require.True(t, Valid(id), id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_SortsByCreation(t *testing.T) {
	gen := UUIDv7{}
	var list []string
	for i := 0; i < 200; i++ {
		list = append(list, gen.NewID())
	}
	assert.True(t, sort.StringsAreSorted(list))
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("not-an-id"))
	assert.True(t, Valid("0190b6a4-6f1e-7c3a-9a4b-2f6d1e0c9b11"))
}
