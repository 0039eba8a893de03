// Package retrieval ranks candidate documents against a query and packs
// the best of them into a token budget.
//
// Both operations are total: they never fail and never touch the network.
package retrieval

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/richinex/querygate/model"
)

// Ranking defaults.
const (
	DefaultTitleBonus     = 10.0
	DefaultTitlePrefixLen = 20
	DefaultMinTokenLen    = 4
)

// RankerOptions tunes the scoring constants.
type RankerOptions struct {
	// TitleBonus is added when the title contains the query prefix.
	TitleBonus float64
	// TitlePrefixLen is the number of query runes matched against titles.
	TitlePrefixLen int
	// MinTokenLen is the shortest query word that counts.
	MinTokenLen int
}

// DefaultRankerOptions returns the stock scoring constants.
func DefaultRankerOptions() RankerOptions {
	return RankerOptions{
		TitleBonus:     DefaultTitleBonus,
		TitlePrefixLen: DefaultTitlePrefixLen,
		MinTokenLen:    DefaultMinTokenLen,
	}
}

// Ranker scores documents by term frequency plus a title bonus.
type Ranker struct {
	opts RankerOptions
}

// NewRanker creates a ranker. Zero fields fall back to the defaults.
func NewRanker(opts RankerOptions) *Ranker {
	def := DefaultRankerOptions()
	if opts.TitleBonus == 0 {
		opts.TitleBonus = def.TitleBonus
	}
	if opts.TitlePrefixLen <= 0 {
		opts.TitlePrefixLen = def.TitlePrefixLen
	}
	if opts.MinTokenLen <= 0 {
		opts.MinTokenLen = def.MinTokenLen
	}
	return &Ranker{opts: opts}
}

// Rank scores and orders docs with the default options.
func Rank(query string, docs []model.Document) []model.RankedDocument {
	return NewRanker(DefaultRankerOptions()).Rank(query, docs)
}

// Rank returns docs ordered by score desc, CreatedAt desc, ID asc.
func (r *Ranker) Rank(query string, docs []model.Document) []model.RankedDocument {
	ranked := make([]model.RankedDocument, 0, len(docs))
	if len(docs) == 0 {
		return ranked
	}

	tokens := r.Tokenize(query)
	prefix := queryPrefix(query, r.opts.TitlePrefixLen)

	for _, doc := range docs {
		ranked = append(ranked, model.RankedDocument{
			Document: doc,
			Score:    r.score(doc, tokens, prefix),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Document.CreatedAt.Equal(b.Document.CreatedAt) {
			return a.Document.CreatedAt.After(b.Document.CreatedAt)
		}
		return a.Document.ID < b.Document.ID
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Tokenize lowercases the query and keeps words of at least MinTokenLen
// runes. Repeated words are kept; each occurrence contributes to a score.
func (r *Ranker) Tokenize(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) >= r.opts.MinTokenLen {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func (r *Ranker) score(doc model.Document, tokens []string, prefix string) float64 {
	text := strings.ToLower(doc.Title + " " + doc.Body + " " + doc.Summary)

	var score float64
	for _, tok := range tokens {
		score += float64(strings.Count(text, tok))
	}
	if prefix != "" && strings.Contains(strings.ToLower(doc.Title), prefix) {
		score += r.opts.TitleBonus
	}
	return score
}

// queryPrefix returns the first n runes of the lowercased, trimmed query.
func queryPrefix(query string, n int) string {
	q := []rune(strings.ToLower(strings.TrimSpace(query)))
	if len(q) > n {
		q = q[:n]
	}
	return string(q)
}
