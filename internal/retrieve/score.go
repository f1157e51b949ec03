package retrieve

import (
	"regexp"
	"strings"
	"time"
)

const (
	recencyWeight  = 0.2
	salienceWeight = 0.1
	distanceWeight = 0.1
	maxTagMatches  = 3
	maxTags        = 5
	minTagLen      = 4
)

var nonAlphaRe = regexp.MustCompile(`[^a-z]+`)

// blendScore combines reranker relevance with recency, salience, distance,
// and tag-overlap boosts (spec §4.F score formula). When noRerank is true
// relevance is treated as 0 and the blend falls back to the distance-led
// ordering the spec's "reranker returns no scores" edge case requires.
func blendScore(relevance float64, c Candidate, query string, tagBoost float64, noRerank bool) float64 {
	distBonus := 1 / (1 + c.Distance)
	recency := recencyBoost(c.Metadata)
	salience := metaSalience(c.Metadata)
	tagOverlap := tagOverlapBoost(c.Metadata, query)

	score := distanceWeight*distBonus + recencyWeight*recency + salienceWeight*salience + tagBoost*tagOverlap
	if !noRerank {
		score += relevance
	}
	return score
}

func recencyBoost(meta map[string]any) float64 {
	createdAt, ok := metaCreatedAt(meta)
	if !ok {
		return 0
	}
	ageDays := time.Since(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + ageDays/7)
}

func tagOverlapBoost(meta map[string]any, query string) float64 {
	queryTags := extractTags(query, maxTags)
	entryTags := metaTags(meta)
	if len(queryTags) == 0 || len(entryTags) == 0 {
		return 0
	}
	entrySet := make(map[string]bool, len(entryTags))
	for _, t := range entryTags {
		entrySet[strings.ToLower(t)] = true
	}
	matches := 0
	for _, t := range queryTags {
		if entrySet[t] {
			matches++
		}
	}
	if matches > maxTagMatches {
		matches = maxTagMatches
	}
	return float64(matches) * 0.1
}

// extractTags implements the heuristic tag extractor: lowercase alpha-only
// tokens of length >= minTagLen, deduped preserving first-seen order,
// capped at maxCount.
func extractTags(text string, maxCount int) []string {
	fields := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool, len(fields))
	tags := make([]string, 0, maxCount)
	for _, f := range fields {
		token := nonAlphaRe.ReplaceAllString(f, "")
		if len(token) < minTagLen || seen[token] {
			continue
		}
		seen[token] = true
		tags = append(tags, token)
		if len(tags) >= maxCount {
			break
		}
	}
	return tags
}
