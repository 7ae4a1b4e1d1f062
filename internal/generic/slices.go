package generic

import (
	"math/rand"
	"sort"

	"golang.org/x/exp/constraints"
)

func SortSlice[T constraints.Ordered](arr []T) {
	sort.Slice(arr, func(i, j int) bool {
		return arr[i] < arr[j]
	})
}

// Shuffle randomizes the order of elements in place using the given source.
// A nil source falls back to the global one.
func Shuffle[T any](arr []T, rng *rand.Rand) {
	swap := func(i, j int) {
		arr[i], arr[j] = arr[j], arr[i]
	}

	if rng != nil {
		rng.Shuffle(len(arr), swap)
		return
	}

	rand.Shuffle(len(arr), swap)
}
