package sim

import mathrand "math/rand"

// WeightedSample draws up to k items from pool without replacement,
// each draw proportional to weight(item). Items with non-positive
// weight are never selected. The returned slice holds at most
// min(k, len(eligible)) items and never repeats one.
func WeightedSample[T any](rng *mathrand.Rand, pool []T, weight func(T) float64, k int) []T {
	if k <= 0 || len(pool) == 0 {
		return nil
	}

	remaining := make([]T, len(pool))
	copy(remaining, pool)
	out := make([]T, 0, k)

	for len(out) < k && len(remaining) > 0 {
		total := 0.0
		for _, item := range remaining {
			if w := weight(item); w > 0 {
				total += w
			}
		}
		if total <= 0 {
			break
		}

		target := rng.Float64() * total
		chosen := -1
		acc := 0.0
		for i, item := range remaining {
			w := weight(item)
			if w <= 0 {
				continue
			}
			acc += w
			if target < acc {
				chosen = i
				break
			}
		}
		if chosen < 0 {
			// Float accumulation landed past the last weight.
			for i := len(remaining) - 1; i >= 0; i-- {
				if weight(remaining[i]) > 0 {
					chosen = i
					break
				}
			}
			if chosen < 0 {
				break
			}
		}

		out = append(out, remaining[chosen])
		remaining = append(remaining[:chosen], remaining[chosen+1:]...)
	}
	return out
}
