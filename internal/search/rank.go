package search

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Field weights for the legacy presence ranker.
const (
	legacySubjectWeight = 10.0
	legacySenderWeight  = 5.0
	legacyThreadWeight  = 3.0
	legacyBodyWeight    = 1.0
)

// BM25F parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// RRFK is the reciprocal rank fusion constant.
const RRFK = 60.0

type field int

const (
	fieldSubject field = iota
	fieldSender
	fieldThread
	fieldBody
	numFields
)

var bm25Weights = [numFields]float64{
	fieldSubject: 3.0,
	fieldSender:  2.0,
	fieldThread:  1.5,
	fieldBody:    1.0,
}

var legacyWeights = [numFields]float64{
	fieldSubject: legacySubjectWeight,
	fieldSender:  legacySenderWeight,
	fieldThread:  legacyThreadWeight,
	fieldBody:    legacyBodyWeight,
}

// tokenize lower-cases text and splits it on anything that is not a letter or
// digit, mirroring the index tokenizer.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// term is one scoring unit: a single token or a phrase, optionally a prefix.
type term struct {
	tokens []string
	prefix bool
}

func (t term) key() string {
	k := strings.Join(t.tokens, " ")
	if t.prefix {
		k += "*"
	}
	return k
}

// parseTerms extracts scoring terms from a sanitized MATCH expression. Terms
// negated with NOT do not score.
func parseTerms(match string) []term {
	var out []term
	seen := map[string]bool{}
	negate := false
	for _, tok := range splitQuoted(match) {
		if isOperator(tok) {
			negate = tok == "NOT"
			continue
		}
		if negate {
			negate = false
			continue
		}
		t := term{}
		if strings.HasSuffix(tok, "*") {
			t.prefix = true
			tok = strings.TrimRight(tok, "*")
		}
		t.tokens = tokenize(strings.Trim(tok, `"`))
		if len(t.tokens) == 0 || seen[t.key()] {
			continue
		}
		seen[t.key()] = true
		out = append(out, t)
	}
	return out
}

// countIn returns how many times t occurs in toks.
func (t term) countIn(toks []string) int {
	n := len(t.tokens)
	count := 0
	for i := 0; i+n <= len(toks); i++ {
		ok := true
		for j := 0; j < n; j++ {
			want := t.tokens[j]
			got := toks[i+j]
			if t.prefix && j == n-1 {
				if !strings.HasPrefix(got, want) {
					ok = false
					break
				}
			} else if got != want {
				ok = false
				break
			}
		}
		if ok {
			count++
		}
	}
	return count
}

// doc is a tokenized candidate.
type doc struct {
	id     int64
	fields [numFields][]string
}

func newDoc(c Candidate) doc {
	d := doc{id: c.ID}
	d.fields[fieldSubject] = tokenize(c.Subject)
	d.fields[fieldSender] = tokenize(c.SenderName)
	d.fields[fieldThread] = tokenize(c.ThreadID)
	d.fields[fieldBody] = tokenize(c.Body)
	return d
}

// scored pairs a candidate index with its score.
type scored struct {
	idx   int
	id    int64
	score float64
}

func sortScored(s []scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].score != s[j].score {
			return s[i].score > s[j].score
		}
		return s[i].id < s[j].id
	})
}

// rankLegacy scores each candidate by summing field weights for every term
// the field contains.
func rankLegacy(docs []doc, terms []term) []scored {
	out := make([]scored, len(docs))
	for i, d := range docs {
		var score float64
		for _, t := range terms {
			for f := field(0); f < numFields; f++ {
				if t.countIn(d.fields[f]) > 0 {
					score += legacyWeights[f]
				}
			}
		}
		out[i] = scored{idx: i, id: d.id, score: score}
	}
	sortScored(out)
	return out
}

// rankBM25F scores candidates with field-weighted BM25. universe is the number
// of documents the facets admit; document frequencies come from the candidates.
func rankBM25F(docs []doc, terms []term, universe int) []scored {
	n := float64(max(universe, len(docs)))

	var avgLen [numFields]float64
	for _, d := range docs {
		for f := field(0); f < numFields; f++ {
			avgLen[f] += float64(len(d.fields[f]))
		}
	}
	for f := field(0); f < numFields; f++ {
		if len(docs) > 0 {
			avgLen[f] /= float64(len(docs))
		}
		if avgLen[f] == 0 {
			avgLen[f] = 1
		}
	}

	tf := make([][]float64, len(terms))
	idf := make([]float64, len(terms))
	for ti, t := range terms {
		tf[ti] = make([]float64, len(docs))
		df := 0
		for di, d := range docs {
			var weighted float64
			for f := field(0); f < numFields; f++ {
				c := t.countIn(d.fields[f])
				if c == 0 {
					continue
				}
				norm := 1 - bm25B + bm25B*float64(len(d.fields[f]))/avgLen[f]
				weighted += bm25Weights[f] * float64(c) / norm
			}
			if weighted > 0 {
				df++
			}
			tf[ti][di] = weighted
		}
		idf[ti] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
	}

	out := make([]scored, len(docs))
	for di, d := range docs {
		var score float64
		for ti := range terms {
			w := tf[ti][di]
			if w == 0 {
				continue
			}
			score += idf[ti] * w / (bm25K1 + w)
		}
		out[di] = scored{idx: di, id: d.id, score: score}
	}
	sortScored(out)
	return out
}

// fuseRRF merges ranked lists with reciprocal rank fusion.
func fuseRRF(lists ...[]scored) []scored {
	byIdx := map[int]*scored{}
	var order []int
	for _, list := range lists {
		for rank, s := range list {
			entry, ok := byIdx[s.idx]
			if !ok {
				entry = &scored{idx: s.idx, id: s.id}
				byIdx[s.idx] = entry
				order = append(order, s.idx)
			}
			entry.score += 1.0 / (RRFK + float64(rank+1))
		}
	}
	out := make([]scored, 0, len(order))
	for _, idx := range order {
		out = append(out, *byIdx[idx])
	}
	sortScored(out)
	return out
}

// rank dispatches to the backend and reports the explain method.
func rank(engine Engine, cands []Candidate, terms []term, universe int) ([]scored, string) {
	docs := make([]doc, len(cands))
	for i, c := range cands {
		docs[i] = newDoc(c)
	}
	switch engine {
	case EngineLexical:
		return rankBM25F(docs, terms, universe), "lexical_bm25"
	case EngineHybrid:
		return fuseRRF(rankLegacy(docs, terms), rankBM25F(docs, terms, universe)), "hybrid_rrf"
	default:
		return rankLegacy(docs, terms), "legacy_rank"
	}
}
