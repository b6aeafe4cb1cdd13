package document

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkText splits text into sentence-aligned chunks of at most size runes.
// Consecutive chunks share trailing sentences whose combined length fits in
// overlap. A sentence longer than size is emitted as its own chunk.
func ChunkText(text string, size, overlap int) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return []string{}
	}
	if size <= 0 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		var (
			parts  []string
			length int
			j      = i
		)
		for j < len(sentences) {
			add := runeLen(sentences[j])
			if len(parts) > 0 {
				add++ // joining space
			}
			if len(parts) > 0 && length+add > size {
				break
			}
			parts = append(parts, sentences[j])
			length += add
			j++
		}
		chunks = append(chunks, strings.Join(parts, " "))

		if j >= len(sentences) {
			break
		}

		overlapCount, overlapLen := 0, 0
		for k := j - 1; k > i; k-- {
			l := runeLen(sentences[k])
			if overlapCount > 0 {
				l++
			}
			if overlapLen+l > overlap {
				break
			}
			overlapLen += l
			overlapCount++
		}

		next := j - overlapCount
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return chunks
}

// SplitSentences normalises whitespace and breaks text at sentence-ending
// punctuation followed by whitespace and an uppercase letter. Short
// abbreviations such as "Dr." and "e.g." do not end a sentence.
func SplitSentences(text string) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	var (
		sentences []string
		start     int
	)
	for i := 0; i < len(runes)-2; i++ {
		if !isTerminator(runes[i]) || runes[i+1] != ' ' || !unicode.IsUpper(runes[i+2]) {
			continue
		}
		if isAbbreviation(runes, i) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 2
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isAbbreviation reports whether the terminator at runes[i] closes a token
// shaped like "Xy." or "a.b." rather than a sentence.
func isAbbreviation(runes []rune, i int) bool {
	if i >= 2 && runes[i] == '.' && unicode.IsUpper(runes[i-2]) && unicode.IsLower(runes[i-1]) {
		return true
	}
	if i >= 3 && isWord(runes[i-3]) && runes[i-2] == '.' && isWord(runes[i-1]) {
		return true
	}
	return false
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
