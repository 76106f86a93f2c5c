// Package identity generates the ephemeral display name a chat session posts
// under, e.g. "silent_moon".
package identity

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/goombaio/namegenerator"
)

// Identity is a human-readable pseudonym. It is the author of every message
// the session sends and the key for echo suppression.
type Identity string

// String returns the pseudonym.
func (id Identity) String() string { return string(id) }

// Style controls word casing.
type Style int

const (
	StyleLower Style = iota
	StyleUpper
	StyleCapital
)

// Generator composes a pseudonym from an adjective-noun name, or from one
// random word per custom dictionary, joined by a separator. It is safe for
// concurrent use.
type Generator struct {
	mu           sync.Mutex
	rng          *rand.Rand
	names        namegenerator.Generator
	dictionaries [][]string
	custom       bool
	separator    string
	style        Style
	numberMin    int
	numberMax    int
	withNumber   bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithDictionaries replaces the adjective-noun source with one word from each
// list. Empty lists are skipped. With no usable list and no number suffix the
// generator falls back to adjective-noun names.
func WithDictionaries(dicts ...[]string) Option {
	return func(g *Generator) {
		g.custom = true
		g.dictionaries = nil
		for _, d := range dicts {
			if len(d) > 0 {
				g.dictionaries = append(g.dictionaries, d)
			}
		}
	}
}

// WithSeparator sets the string placed between words.
func WithSeparator(sep string) Option {
	return func(g *Generator) { g.separator = sep }
}

// WithStyle sets word casing.
func WithStyle(s Style) Option {
	return func(g *Generator) { g.style = s }
}

// WithNumberSuffix appends a random number in [min, max] as a final word.
// Spans wider than math.MaxInt are clamped at the top.
func WithNumberSuffix(min, max int) Option {
	return func(g *Generator) {
		if max < min {
			min, max = max, min
		}
		if min <= 0 && max > min+math.MaxInt-1 {
			max = min + math.MaxInt - 1
		}
		g.withNumber = true
		g.numberMin = min
		g.numberMax = max
	}
}

// WithRand sets the random source, for deterministic output in tests. It
// also seeds the adjective-noun source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// NewGenerator returns a Generator producing lowercase adjective-noun names
// joined by "_" unless overridden.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		separator: "_",
		style:     StyleLower,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if len(g.dictionaries) == 0 && !(g.custom && g.withNumber) {
		g.names = namegenerator.NewNameGenerator(g.rng.Int64())
	}
	return g
}

// Generate returns a new pseudonym. Consecutive calls may return different
// values. Uniqueness across sessions is best effort.
func (g *Generator) Generate() Identity {
	g.mu.Lock()
	var words []string
	if g.names != nil {
		words = strings.Split(g.names.Generate(), "-")
	}
	for _, dict := range g.dictionaries {
		words = append(words, dict[g.rng.IntN(len(dict))])
	}
	for i, w := range words {
		words[i] = applyStyle(w, g.style)
	}
	if g.withNumber {
		n := g.numberMin + g.rng.IntN(g.numberMax-g.numberMin+1)
		words = append(words, strconv.Itoa(n))
	}
	g.mu.Unlock()

	return Identity(strings.Join(words, g.separator))
}

func applyStyle(word string, s Style) string {
	switch s {
	case StyleUpper:
		return strings.ToUpper(word)
	case StyleCapital:
		r, size := utf8.DecodeRuneInString(word)
		if r == utf8.RuneError {
			return word
		}
		return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
	default:
		return strings.ToLower(word)
	}
}

var defaultGenerator = NewGenerator()

// Generate returns a pseudonym from the package default generator.
func Generate() Identity {
	return defaultGenerator.Generate()
}
