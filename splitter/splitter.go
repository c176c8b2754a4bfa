// Package splitter cuts document text into chunks sized for embedding.
//
// A TextSplitter packs pieces of the configured level (characters, words,
// phrases, or paragraphs) into chunks of at most MaxChar runes. A piece too
// large for one chunk falls back a level: paragraphs and phrases re-split on
// words, words on characters. With Overlap set, each chunk is extended with
// the head of the following chunk so context survives the cut points. All
// sizes count runes.
package splitter

import (
	"fmt"
	"maps"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/poiesic/maestro/core"
)

// Level selects the separator the splitter cuts on.
type Level string

const (
	LevelChar      Level = "char"
	LevelWord      Level = "word"
	LevelPhrase    Level = "phrase"
	LevelParagraph Level = "paragraph"
)

// DefaultMaxChar is the chunk size used when none is configured.
const DefaultMaxChar = 5000

var (
	wordRe      = regexp.MustCompile(`\s+`)
	phraseRe    = regexp.MustCompile(`[.!?]\s+`)
	paragraphRe = regexp.MustCompile(`\n\n+|\r\n\r\n+|\r\r+`)
)

// Config holds the splitter settings.
type Config struct {
	// MaxChar is the maximum chunk size in runes.
	MaxChar int

	// Overlap is the size of the suffix each chunk borrows from the next
	// one, in runes.
	Overlap int

	// Level is the separator level, LevelChar by default.
	Level Level

	// MinOverlapWords is the word count below which the overlap falls back
	// from whole words to a plain rune prefix.
	MinOverlapWords int

	// Metadata is stamped onto every produced chunk.
	Metadata map[string]any
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithMaxChar sets the maximum chunk size in runes.
func WithMaxChar(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("max char must be positive: %d", n)
		}
		c.MaxChar = n
		return nil
	}
}

// WithOverlap sets the overlap size in runes.
func WithOverlap(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("overlap must not be negative: %d", n)
		}
		c.Overlap = n
		return nil
	}
}

// WithLevel sets the separator level.
func WithLevel(level Level) Option {
	return func(c *Config) error {
		switch level {
		case LevelChar, LevelWord, LevelPhrase, LevelParagraph:
			c.Level = level
			return nil
		default:
			return fmt.Errorf("invalid split level %q (valid: char, word, phrase, paragraph)", level)
		}
	}
}

// WithMinOverlapWords sets the word threshold for word-based overlap.
func WithMinOverlapWords(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("min overlap words must be positive: %d", n)
		}
		c.MinOverlapWords = n
		return nil
	}
}

// WithMetadata stamps the given metadata onto every produced chunk.
func WithMetadata(metadata map[string]any) Option {
	return func(c *Config) error {
		c.Metadata = metadata
		return nil
	}
}

// TextSplitter splits raw text into chunks.
type TextSplitter struct {
	maxChar         int
	overlap         int
	level           Level
	minOverlapWords int
	metadata        map[string]any
}

// New builds a TextSplitter. Defaults: MaxChar 5000, no overlap, char
// level.
func New(opts ...Option) (*TextSplitter, error) {
	cfg := Config{
		MaxChar:         DefaultMaxChar,
		Level:           LevelChar,
		MinOverlapWords: 1,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &TextSplitter{
		maxChar:         cfg.MaxChar,
		overlap:         cfg.Overlap,
		level:           cfg.Level,
		minOverlapWords: cfg.MinOverlapWords,
		metadata:        maps.Clone(cfg.Metadata),
	}, nil
}

// Split cuts text into chunks. Empty text yields no chunks; text within
// MaxChar yields a single chunk.
func (t *TextSplitter) Split(text string) []core.Chunk {
	if text == "" {
		return nil
	}
	if runeLen(text) <= t.maxChar {
		return []core.Chunk{t.newChunk(text)}
	}
	if t.level == LevelChar {
		return t.splitChars(text)
	}
	return t.splitDelimited(text, t.level, false)
}

func (t *TextSplitter) newChunk(text string) core.Chunk {
	return core.Chunk{
		ID:       uuid.NewString(),
		Text:     text,
		Metadata: maps.Clone(t.metadata),
	}
}

// step is the packing limit: chunk capacity minus the space reserved for
// overlap, never below one so splitting always makes progress.
func (t *TextSplitter) step() int {
	return max(1, t.maxChar-t.overlap)
}

// splitChars windows over the runes, each window MaxChar wide, advancing by
// step so consecutive windows share the configured overlap.
func (t *TextSplitter) splitChars(text string) []core.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= t.maxChar {
		return []core.Chunk{t.newChunk(text)}
	}

	step := t.step()
	var chunks []core.Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+t.maxChar, len(runes))
		chunks = append(chunks, t.newChunk(string(runes[start:end])))
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// splitDelimited cuts text on the level's separator and packs the pieces
// back up to the step limit. Pieces that alone exceed the limit go through
// overflow at the next level down. skipOverlap suppresses the overlap pass
// on nested calls so it runs once, over the final chunk list.
func (t *TextSplitter) splitDelimited(text string, level Level, skipOverlap bool) []core.Chunk {
	segments := splitSegments(text, level)
	if len(segments) == 0 {
		return nil
	}

	step := t.step()
	var chunks []core.Chunk
	current := ""
	for _, segment := range segments {
		test := segment
		if current != "" {
			test = current + " " + segment
		}
		if runeLen(test) <= step {
			current = test
			continue
		}

		if current != "" {
			chunks = append(chunks, t.newChunk(current))
		}
		if runeLen(segment) <= step {
			current = segment
			continue
		}

		chunks = append(chunks, t.overflow(segment, level)...)
		current = ""
	}
	if current != "" {
		chunks = append(chunks, t.newChunk(current))
	}

	if !skipOverlap && t.overlap > 0 && len(chunks) > 1 {
		chunks = t.applyOverlap(chunks)
	}
	return chunks
}

// overflow re-splits an oversized piece one level down: words for paragraph
// and phrase pieces, characters for words.
func (t *TextSplitter) overflow(segment string, level Level) []core.Chunk {
	if level != LevelWord {
		return t.splitDelimited(segment, LevelWord, true)
	}
	return t.splitChars(segment)
}

// splitSegments cuts text on the level's separator, dropping the separators
// and any empty pieces.
func splitSegments(text string, level Level) []string {
	var parts []string
	switch level {
	case LevelPhrase:
		parts = splitPhrases(text)
	case LevelParagraph:
		parts = paragraphRe.Split(text, -1)
	default:
		parts = wordRe.Split(text, -1)
	}

	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// splitPhrases splits after sentence punctuation. The stdlib regexp engine
// has no lookbehind, so the punctuation is matched along with the following
// whitespace and put back on the segment it ends.
func splitPhrases(text string) []string {
	var segments []string
	start := 0
	for _, m := range phraseRe.FindAllStringIndex(text, -1) {
		segments = append(segments, text[start:m[0]+1])
		start = m[1]
	}
	return append(segments, text[start:])
}

// applyOverlap appends the head of each following chunk to the current one,
// within the space MaxChar leaves after the chunk text and a separator. The
// last chunk is returned as is.
func (t *TextSplitter) applyOverlap(chunks []core.Chunk) []core.Chunk {
	out := make([]core.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		if i == len(chunks)-1 {
			out = append(out, chunk)
			continue
		}

		available := max(0, t.maxChar-runeLen(chunk.Text)-1)
		suffix := t.overlapHead(chunks[i+1].Text, available)
		merged := t.newChunk(chunk.Text + " " + suffix)
		merged.Metadata = chunk.Metadata
		out = append(out, merged)
	}
	return out
}

// overlapHead extracts up to budget runes from the start of text. When the
// prefix holds more than minOverlapWords words it is trimmed back to whole
// words; otherwise the raw rune prefix is used.
func (t *TextSplitter) overlapHead(text string, budget int) string {
	head := runePrefix(text, budget)
	if len(wordRe.Split(head, -1)) <= t.minOverlapWords {
		return head
	}

	words := wordRe.Split(text, -1)
	candidate := ""
	for pos := 0; pos < len(words); pos++ {
		joined := strings.Join(words[:pos], " ")
		if runeLen(joined) > budget {
			break
		}
		candidate = joined
	}
	return candidate
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func runePrefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if n >= len(runes) {
		return s
	}
	return string(runes[:n])
}
