package retrieve

import "strings"

type selected struct {
	candidate Candidate
	score     float64
}

// mmrSelect greedily picks maxItems candidates maximizing
// lambda*relevance - (1-lambda)*redundancy against anything already chosen,
// starting from the single highest-scoring candidate (spec §4.F MMR step).
func mmrSelect(candidates []Candidate, scores []float64, maxItems int, lambda float64) []selected {
	if len(candidates) == 0 || maxItems <= 0 {
		return nil
	}

	firstIdx := argmax(scores)
	chosen := []selected{{candidate: candidates[firstIdx], score: scores[firstIdx]}}
	used := map[int]bool{firstIdx: true}

	for len(chosen) < maxItems && len(used) < len(candidates) {
		bestIdx := -1
		bestMMR := 0.0
		for i := range candidates {
			if used[i] {
				continue
			}
			relevance := scores[i]
			redundancy := maxRedundancy(candidates[i].Content, chosen)
			mmrScore := lambda*relevance - (1-lambda)*redundancy
			if bestIdx == -1 || mmrScore > bestMMR {
				bestIdx = i
				bestMMR = mmrScore
			}
		}
		if bestIdx == -1 {
			break
		}
		chosen = append(chosen, selected{candidate: candidates[bestIdx], score: scores[bestIdx]})
		used[bestIdx] = true
	}
	return chosen
}

func maxRedundancy(content string, chosen []selected) float64 {
	max := 0.0
	for _, s := range chosen {
		if r := tokenOverlapSimilarity(content, s.candidate.Content); r > max {
			max = r
		}
	}
	return max
}

// tokenOverlapSimilarity is |A intersect B| / max(|A|, |B|) over
// whitespace-split, lowercased token sets.
func tokenOverlapSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	overlap := 0
	for t := range setA {
		if setB[t] {
			overlap++
		}
	}
	denom := len(setA)
	if len(setB) > denom {
		denom = len(setB)
	}
	return float64(overlap) / float64(denom)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
