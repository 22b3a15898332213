package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// TFIDFSimilarities returns the cosine similarity between the TF-IDF vector
// of query and that of every document, in document order. IDF is computed
// over the documents plus the query with add-one smoothing, so a term that
// appears everywhere still carries a small positive weight.
func TFIDFSimilarities(query string, documents []string) []float64 {
	scores := make([]float64, len(documents))

	queryTokens := ContentTokens(query)
	if len(queryTokens) == 0 {
		return scores
	}

	docTokens := make([][]string, len(documents))
	for i, d := range documents {
		docTokens[i] = ContentTokens(d)
	}

	vocab := make(map[string]int)
	df := make(map[string]int)
	for _, tokens := range append([][]string{queryTokens}, docTokens...) {
		seen := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			if _, ok := vocab[t]; !ok {
				vocab[t] = len(vocab)
			}
			if !seen[t] {
				df[t]++
				seen[t] = true
			}
		}
	}

	n := float64(len(documents) + 1)
	idf := make([]float64, len(vocab))
	for term, idx := range vocab {
		idf[idx] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	queryVec := tfidfVector(queryTokens, vocab, idf)
	queryNorm := floats.Norm(queryVec, 2)
	if queryNorm == 0 {
		return scores
	}

	for i, tokens := range docTokens {
		docVec := tfidfVector(tokens, vocab, idf)
		docNorm := floats.Norm(docVec, 2)
		if docNorm == 0 {
			continue
		}
		sim := floats.Dot(queryVec, docVec) / (queryNorm * docNorm)
		scores[i] = clampUnit(sim)
	}

	return scores
}

func tfidfVector(tokens []string, vocab map[string]int, idf []float64) []float64 {
	vec := make([]float64, len(vocab))
	for _, t := range tokens {
		vec[vocab[t]]++
	}
	for i := range vec {
		if vec[i] > 0 {
			// Sublinear term frequency keeps a repeated word from dominating.
			vec[i] = (1 + math.Log(vec[i])) * idf[i]
		}
	}
	return vec
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
