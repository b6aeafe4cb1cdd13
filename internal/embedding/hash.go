package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"gwi.com/course-assistant/internal/utils"
)

// HashEmbedder is a deterministic, offline embedder. Words and their
// character trigrams are hashed into a fixed number of buckets, weighted by
// sublinear term frequency and L2-normalised. It needs no corpus preparation,
// which makes it usable for incremental ingestion and for tests.
type HashEmbedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+`),
		stopwords:    defaultStopwords(),
	}
}

func (e *HashEmbedder) Name() string { return "hash" }

func (e *HashEmbedder) Dimension() int { return e.dimension }

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[int]float64)
	for _, tok := range e.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		e.add(counts, "w:"+tok, 1.0)

		padded := []rune("^" + tok + "$")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(counts, "g:"+string(padded[i:i+3]), 0.5)
		}
	}

	vec := make([]float32, e.dimension)
	for idx, c := range counts {
		vec[idx] = float32(math.Copysign(math.Log1p(math.Abs(c)), c))
	}
	utils.Normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) add(counts map[int]float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	counts[idx] += weight
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has", "have",
		"in", "is", "it", "its", "of", "on", "or", "that", "the", "this", "to", "was",
		"were", "what", "which", "with", "about", "how", "does", "do",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
