package mirror

import "math/rand"

// minWeight guards against underflow for absurdly large ranks so a
// mirror always keeps a nonzero chance of selection.
const minWeight = 1e-9

// Select returns up to maxCandidates mirror URLs, sampled without
// replacement with probability proportional to 1/rank². Non-HTTPS
// entries are filtered out even if the underlying store let one
// through. Deterministic for a fixed rng.
func Select(mirrors []Mirror, maxCandidates int, rng *rand.Rand) []string {
	type candidate struct {
		url    string
		weight float64
	}

	pool := make([]candidate, 0, len(mirrors))
	for _, m := range mirrors {
		if !isHTTPS(m.URL) {
			continue
		}
		rank := m.Rank
		if rank < 1 {
			rank = 1
		}
		w := 1 / (float64(rank) * float64(rank))
		if w < minWeight {
			w = minWeight
		}
		pool = append(pool, candidate{url: m.URL, weight: w})
	}

	if maxCandidates > len(pool) {
		maxCandidates = len(pool)
	}

	selected := make([]string, 0, maxCandidates)
	for len(selected) < maxCandidates {
		total := 0.0
		for _, c := range pool {
			total += c.weight
		}

		x := rng.Float64() * total
		idx := len(pool) - 1
		for i, c := range pool {
			x -= c.weight
			if x < 0 {
				idx = i
				break
			}
		}

		selected = append(selected, pool[idx].url)
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	return selected
}
