package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Per-request character budgets by vendor. Requests above the budget are
// rejected by the vendor, so long text is split into budget-sized chunks
// before synthesis.
const (
	azureTextBudget      = 5000
	googleTextBudget     = 4500
	pollyTextBudget      = 2900
	openAITextBudget     = 4000
	elevenLabsTextBudget = 2500

	// defaultTextBudget is the budget used for unknown providers.
	defaultTextBudget = 2500
)

// TextBudget returns the per-request character budget for a provider.
func TextBudget(provider string) int {
	switch provider {
	case ProviderAzure:
		return azureTextBudget
	case ProviderGoogle:
		return googleTextBudget
	case ProviderPolly:
		return pollyTextBudget
	case ProviderOpenAI:
		return openAITextBudget
	case ProviderElevenLabs:
		return elevenLabsTextBudget
	default:
		return defaultTextBudget
	}
}

// SplitText splits text into chunks of at most budget characters.
// Chunks break on sentence boundaries where possible, falling back to word
// boundaries for oversized sentences. Text that fits the budget is returned
// as a single chunk. A single word longer than the budget is split at the
// budget as a last resort.
func SplitText(text string, budget int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range splitSentences(text) {
		sentenceLen := utf8.RuneCountInString(sentence)

		if sentenceLen > budget {
			flush()
			chunks = append(chunks, splitWords(sentence, budget)...)
			continue
		}

		// Account for the joining space between sentences.
		sep := 0
		if currentLen > 0 {
			sep = 1
		}

		if currentLen+sep+sentenceLen > budget {
			flush()
			sep = 0
		}

		if sep == 1 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentLen += sep + sentenceLen
	}

	flush()
	return chunks
}

// splitSentences splits text after terminal punctuation followed by
// whitespace or end of input. Trailing and leading whitespace is trimmed
// from each sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		end := i + utf8.RuneLen(r)
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				continue
			}
		}

		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// splitWords splits a sentence into budget-sized chunks on word boundaries.
func splitWords(sentence string, budget int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range strings.Fields(sentence) {
		wordLen := utf8.RuneCountInString(word)

		if wordLen > budget {
			flush()
			chunks = append(chunks, splitRunes(word, budget)...)
			continue
		}

		sep := 0
		if currentLen > 0 {
			sep = 1
		}

		if currentLen+sep+wordLen > budget {
			flush()
			sep = 0
		}

		if sep == 1 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
		currentLen += sep + wordLen
	}

	flush()
	return chunks
}

// splitRunes hard-splits a word that exceeds the budget on its own.
func splitRunes(word string, budget int) []string {
	var chunks []string
	runes := []rune(word)

	for len(runes) > budget {
		chunks = append(chunks, string(runes[:budget]))
		runes = runes[budget:]
	}

	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}

	return chunks
}
