package soundscape

import "github.com/zjrosen/displayboard/internal/random"

// Pick assigns one item to one channel at one volume.
type Pick[T any] struct {
	Item    T
	Channel int
	Volume  float64
}

// PickHorde selects a random subset of items, pairs the i-th selection with
// channels[i] and splits base across them by random weights so the volumes
// sum to base. It returns nil when items or channels is empty.
func PickHorde[T any](r random.Source, items []T, channels []int, base float64) []Pick[T] {
	if len(items) == 0 || len(channels) == 0 {
		return nil
	}
	n := random.IntRange(r, 1, min(len(items), len(channels)))
	chosen := random.Sample(r, len(items), n)

	weights := make([]float64, n)
	sum := 0.0
	for i := range weights {
		weights[i] = r.Float64()
		sum += weights[i]
	}

	picks := make([]Pick[T], n)
	for i, idx := range chosen {
		vol := base / float64(n)
		if sum > 0 {
			vol = base * weights[i] / sum
		}
		picks[i] = Pick[T]{Item: items[idx], Channel: channels[i], Volume: vol}
	}
	return picks
}
