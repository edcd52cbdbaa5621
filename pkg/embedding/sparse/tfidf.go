package sparse

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Vector is a sparse term-indicator vector in coordinate form.
type Vector struct {
	Indices []uint32
	Values  []float32
}

const maxFeatures = 20000

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "with": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "it": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"be": {}, "as": {}, "at": {}, "by": {}, "from": {}, "has": {}, "have": {},
	"had": {}, "not": {}, "but": {}, "what": {}, "which": {}, "who": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "do": {}, "does": {},
}

// TfidfEncoder encodes text as TF-IDF weighted sparse vectors over a
// vocabulary of unigrams and bigrams fitted once from the corpus.
//
// "Not fitted" is a normal runtime state: callers fall back to dense-only
// search until a vocabulary has been trained. The vocabulary is persisted to
// disk so the fitted state survives restarts.
type TfidfEncoder struct {
	mu        sync.RWMutex
	vocabPath string
	vocab     map[string]uint32
	idf       []float64
}

type vocabFile struct {
	Vocab map[string]uint32 `json:"vocab"`
	IDF   []float64         `json:"idf"`
}

// NewTfidfEncoder loads a previously fitted vocabulary from vocabPath if one
// exists; otherwise the encoder starts unfitted.
func NewTfidfEncoder(vocabPath string) *TfidfEncoder {
	enc := &TfidfEncoder{vocabPath: vocabPath}

	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return enc
	}
	var vf vocabFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return enc
	}
	enc.vocab = vf.Vocab
	enc.idf = vf.IDF
	return enc
}

func (e *TfidfEncoder) IsFitted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vocab != nil
}

// Fit builds the vocabulary and IDF weights from the corpus and persists
// them. Fitting twice is an error; the vocabulary is built once.
func (e *TfidfEncoder) Fit(texts []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.vocab != nil {
		return fmt.Errorf("tf-idf vocabulary already exists")
	}
	if len(texts) == 0 {
		return fmt.Errorf("empty corpus")
	}

	// Document frequency per term.
	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, term := range tokenize(text) {
			seen[term] = struct{}{}
		}
		for term := range seen {
			df[term]++
		}
	}

	// Keep the most frequent terms; ties broken lexicographically so the
	// vocabulary is deterministic for a given corpus.
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(texts))
	vocab := make(map[string]uint32, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocab[term] = uint32(i)
		// Smoothed IDF, always positive.
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	e.vocab = vocab
	e.idf = idf
	return e.save()
}

// Encode returns the TF-IDF sparse vector of a text, L2-normalized.
func (e *TfidfEncoder) Encode(text string) (*Vector, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.vocab == nil {
		return nil, fmt.Errorf("tf-idf vocabulary not initialized")
	}

	counts := make(map[uint32]float64)
	for _, term := range tokenize(text) {
		if idx, ok := e.vocab[term]; ok {
			counts[idx]++
		}
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	var norm float64
	for i, idx := range indices {
		w := counts[idx] * e.idf[idx]
		values[i] = float32(w)
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range values {
			values[i] = float32(float64(values[i]) / norm)
		}
	}

	return &Vector{Indices: indices, Values: values}, nil
}

func (e *TfidfEncoder) save() error {
	data, err := json.Marshal(vocabFile{Vocab: e.vocab, IDF: e.idf})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(e.vocabPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(e.vocabPath, data, 0o644)
}

// tokenize lowercases, strips stopwords and emits unigrams plus bigrams.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f == "" {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		words = append(words, f)
	}

	terms := make([]string, 0, len(words)*2)
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}
