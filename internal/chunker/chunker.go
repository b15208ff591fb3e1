// Package chunker splits narration text into bounded, speakable segments.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/loqalabs/loqa-narrate/internal/config"
)

// ErrInvalidConfig is returned before any splitting when the config cannot
// produce chunks.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Mode selects the splitting strategy.
type Mode string

const (
	ModeSentence Mode = "sentence"
	ModeWord     Mode = "word"
)

// Config controls Split. MaxChunkLength is a character budget; in sentence
// mode it is advisory and a single long sentence still gets its own chunk.
type Config struct {
	Mode           Mode
	MaxChunkLength int
	OverlapWords   int
}

// FromConfig maps the chunking section of the runtime config.
func FromConfig(cfg config.ChunkingConfig) Config {
	return Config{
		Mode:           Mode(cfg.Mode),
		MaxChunkLength: cfg.MaxChunkLength,
		OverlapWords:   cfg.OverlapWords,
	}
}

// Chunk is one segment of the source text, in source order.
type Chunk struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	ApproxLength int    `json:"approx_length"`
	// Carried is the number of leading words seeded from the previous chunk
	// in word mode.
	Carried int `json:"carried,omitempty"`
}

var (
	whitespaceRun    = regexp.MustCompile(`\s+`)
	sentenceBoundary = regexp.MustCompile(`[.!?]\s`)
)

// Normalize collapses whitespace runs to one space and trims the ends.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Split divides text into chunks according to cfg. Empty or blank text
// yields no chunks.
func Split(text string, cfg Config) ([]Chunk, error) {
	if cfg.MaxChunkLength <= 0 {
		return nil, fmt.Errorf("%w: max chunk length must be > 0, got %d", ErrInvalidConfig, cfg.MaxChunkLength)
	}
	if cfg.OverlapWords < 0 {
		return nil, fmt.Errorf("%w: overlap words must be >= 0, got %d", ErrInvalidConfig, cfg.OverlapWords)
	}

	normalized := Normalize(text)
	switch cfg.Mode {
	case ModeSentence, "":
		return splitSentences(normalized, cfg.MaxChunkLength), nil
	case ModeWord:
		return splitWords(normalized, cfg.MaxChunkLength, cfg.OverlapWords), nil
	default:
		return nil, fmt.Errorf("%w: unsupported mode %q", ErrInvalidConfig, cfg.Mode)
	}
}

// Sentences splits normalized text after each '.', '!' or '?' that is
// followed by whitespace. The terminator stays with its sentence.
func Sentences(normalized string) []string {
	if normalized == "" {
		return nil
	}
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(normalized, -1) {
		end := loc[0] + 1
		if s := strings.TrimSpace(normalized[start:end]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(normalized[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func splitSentences(normalized string, maxLen int) []Chunk {
	var (
		chunks     []Chunk
		current    []string
		currentLen int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = appendChunk(chunks, strings.Join(current, " "), 0)
		current = nil
		currentLen = 0
	}
	for _, sentence := range Sentences(normalized) {
		n := utf8.RuneCountInString(sentence)
		if len(current) > 0 && currentLen+n > maxLen {
			flush()
		}
		current = append(current, sentence)
		currentLen += n
	}
	flush()
	return chunks
}

func splitWords(normalized string, maxLen, overlap int) []Chunk {
	var (
		chunks  []Chunk
		current []string
		carried int
	)
	for _, word := range strings.Fields(normalized) {
		current = append(current, word)
		if utf8.RuneCountInString(strings.Join(current, " ")) <= maxLen {
			continue
		}
		keep := len(current) - overlap
		if overlap <= 0 || keep <= 0 {
			chunks = appendChunk(chunks, strings.Join(current, " "), carried)
			current = nil
			carried = 0
			continue
		}
		chunks = appendChunk(chunks, strings.Join(current[:keep], " "), min(carried, keep))
		current = append([]string(nil), current[keep:]...)
		carried = len(current)
	}
	if len(current) > 0 {
		chunks = appendChunk(chunks, strings.Join(current, " "), carried)
	}
	return chunks
}

func appendChunk(chunks []Chunk, text string, carried int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return chunks
	}
	return append(chunks, Chunk{
		Index:        len(chunks),
		Text:         text,
		ApproxLength: utf8.RuneCountInString(text),
		Carried:      carried,
	})
}

// Join reassembles chunk texts in order. For chunks produced by Split this
// equals Normalize of the source text.
func Join(chunks []Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, " ")
}
