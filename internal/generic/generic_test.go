package generic

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKeys(t *testing.T) {
	m1 := map[string]int{"a": 1, "b": 2}
	m2 := map[string]int{"b": 3, "c": 4}

	keys := MapKeys(m1, m2)
	SortSlice(keys)

	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMapKeys_Empty(t *testing.T) {
	assert.Empty(t, MapKeys[string, int]())
	assert.Empty(t, MapKeys(map[string]int{}))
}

func TestSortSlice(t *testing.T) {
	arr := []string{"r3", "r1", "r2"}
	SortSlice(arr)

	assert.Equal(t, []string{"r1", "r2", "r3"}, arr)
}

func TestShuffle_KeepsElements(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	arr := []int{1, 2, 3, 4, 5}
	Shuffle(arr, rng)

	require.Len(t, arr, 5)

	SortSlice(arr)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, arr)
}

func TestShuffle_NilSource(t *testing.T) {
	arr := []int{1, 2, 3}
	Shuffle(arr, nil)

	SortSlice(arr)
	assert.Equal(t, []int{1, 2, 3}, arr)
}
