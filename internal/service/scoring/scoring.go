// Package scoring computes a 0-100 pronunciation accuracy score for a spoken
// transcript against a reference sentence.
//
// The score comes from a greedy positional word alignment: reference words are
// visited in order and each one claims the best still-unclaimed spoken word.
// A candidate's raw score is 1.0 for an exact token match, 0.8 when one token
// contains the other, or 0.7 times the character similarity when that
// similarity exceeds 0.6. The raw score is weighted by how close the two words
// sit in their sentences. Spoken words beyond one free extra word cost three
// points each, capped at ten.
//
// The constants are empirical and kept as they are. Reference order drives the
// iteration, so Score(a, b) and Score(b, a) generally differ.
package scoring

import (
	"math"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	exactMatchScore     = 1.0
	substringMatchScore = 0.8
	similarityThreshold = 0.6
	similarityWeight    = 0.7
	charSetWeight       = 0.8

	positionBase   = 0.7
	positionWeight = 0.3

	freeExtraWords   = 1
	extraWordPenalty = 3
	maxPenalty       = 10
)

// WordMatch describes how one reference word was aligned.
type WordMatch struct {
	Reference      string  `json:"reference"`
	ReferenceIndex int     `json:"referenceIndex"`
	Spoken         string  `json:"spoken,omitempty"`
	SpokenIndex    int     `json:"spokenIndex"`
	Confidence     float64 `json:"confidence"`
	Matched        bool    `json:"matched"`
	// SoundsLike names an unclaimed spoken word with the same Double Metaphone
	// code as an unmatched reference word. It never affects the score.
	SoundsLike string `json:"soundsLike,omitempty"`
}

// Result is the outcome of one scoring call.
type Result struct {
	AccuracyPercent int         `json:"accuracyPercent"`
	ExactMatch      bool        `json:"exactMatch"`
	ReferenceWords  int         `json:"referenceWords"`
	SpokenWords     int         `json:"spokenWords"`
	Penalty         int         `json:"penalty"`
	Words           []WordMatch `json:"words"`
}

// Score aligns spoken against reference and returns the accuracy result.
// It never fails: empty or unusable input scores 0, except when both sides
// normalize to the same string (including both empty), which scores 100.
func Score(spoken, reference string) Result {
	normRef := Normalize(reference, true)
	normSpoken := Normalize(spoken, false)

	refWords := Tokenize(normRef)
	spokenWords := Tokenize(normSpoken)

	res := Result{
		ReferenceWords: len(refWords),
		SpokenWords:    len(spokenWords),
	}

	if normRef == normSpoken {
		res.AccuracyPercent = 100
		res.ExactMatch = true
		res.Words = make([]WordMatch, len(refWords))
		for i, w := range refWords {
			res.Words[i] = WordMatch{
				Reference:      w,
				ReferenceIndex: i,
				Spoken:         w,
				SpokenIndex:    i,
				Confidence:     exactMatchScore,
				Matched:        true,
			}
		}
		return res
	}

	if len(refWords) == 0 {
		return res
	}

	var total float64
	res.Words, total = align(refWords, spokenWords)

	accuracy := int(math.Round(100 * total / float64(len(refWords))))

	if extra := len(spokenWords) - len(refWords) - freeExtraWords; extra > 0 {
		res.Penalty = min(maxPenalty, extra*extraWordPenalty)
		accuracy = max(0, accuracy-res.Penalty)
	}

	res.AccuracyPercent = min(100, max(0, accuracy))
	return res
}

// align performs the greedy bipartite matching in reference order and returns
// per-word diagnostics with the summed match scores.
func align(refWords, spokenWords []string) ([]WordMatch, float64) {
	used := make([]bool, len(spokenWords))
	span := float64(max(len(refWords), len(spokenWords)))
	matches := make([]WordMatch, len(refWords))

	var total float64
	for i, rw := range refWords {
		best, bestIdx := 0.0, -1
		for j, sw := range spokenWords {
			if used[j] {
				continue
			}
			raw := wordScore(rw, sw)
			if raw == 0 {
				continue
			}
			if s := raw * proximity(i, j, span); s > best {
				best, bestIdx = s, j
			}
		}

		m := WordMatch{Reference: rw, ReferenceIndex: i, SpokenIndex: -1}
		if bestIdx >= 0 {
			used[bestIdx] = true
			m.Spoken = spokenWords[bestIdx]
			m.SpokenIndex = bestIdx
			m.Confidence = best
			m.Matched = true
			total += best
		}
		matches[i] = m
	}

	for i := range matches {
		if !matches[i].Matched {
			matches[i].SoundsLike = soundsLike(matches[i].Reference, spokenWords, used)
		}
	}
	return matches, total
}

// wordScore is the raw match score of a reference word against a spoken word.
func wordScore(ref, spoken string) float64 {
	switch {
	case ref == spoken:
		return exactMatchScore
	case strings.Contains(ref, spoken) || strings.Contains(spoken, ref):
		return substringMatchScore
	}
	if sim := CharSimilarity(ref, spoken); sim > similarityThreshold {
		return sim * similarityWeight
	}
	return 0
}

// proximity weights a match by the distance between word positions.
func proximity(i, j int, span float64) float64 {
	d := math.Abs(float64(i-j)) / span
	return positionBase + positionWeight*math.Max(0, 1-d)
}

// CharSimilarity returns the larger of the positional character agreement
// (over the longer word) and 0.8 times the share of a's characters found
// anywhere in b.
func CharSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longer := max(len(ra), len(rb))
	if longer == 0 {
		return 0
	}

	same := 0
	for i := 0; i < min(len(ra), len(rb)); i++ {
		if ra[i] == rb[i] {
			same++
		}
	}
	positional := float64(same) / float64(longer)

	var charSet float64
	if len(ra) > 0 {
		present := 0
		for _, r := range ra {
			if strings.ContainsRune(b, r) {
				present++
			}
		}
		charSet = float64(present) / float64(len(ra)) * charSetWeight
	}

	return math.Max(positional, charSet)
}

func soundsLike(ref string, spokenWords []string, used []bool) string {
	rp, rs := matchr.DoubleMetaphone(ref)
	if rp == "" && rs == "" {
		return ""
	}
	for j, sw := range spokenWords {
		if used[j] {
			continue
		}
		sp, ss := matchr.DoubleMetaphone(sw)
		if codeOverlap(rp, rs, sp, ss) {
			return sw
		}
	}
	return ""
}

func codeOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}
