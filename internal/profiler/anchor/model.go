// Package anchor implements C3.1: a multinomial classifier with
// additive (Laplace) smoothing over bag-of-tokens features, trained
// offline and hot-reloaded at runtime via an atomic pointer swap
// (spec.md §4.3.1, §9).
package anchor

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"time"

	"github.com/predictradar/signalscan/internal/model"
)

// Model is the persisted, versioned classifier artifact.
type Model struct {
	ModelVersion string               `json:"modelVersion"`
	CreatedAt    time.Time            `json:"createdAt"`
	AnchorTypes  []model.AnchorType   `json:"anchorTypes"`
	Vocab        []string             `json:"vocab"`
	Alpha        float64              `json:"alpha"`
	LogPrior     []float64            `json:"logPrior"`
	LogProb      [][]float64          `json:"logProb"` // [class][vocab index]

	vocabIndex map[string]int
}

// Prediction is the result of scoring one document.
type Prediction struct {
	AnchorType model.AnchorType
	Confidence float64
}

// index builds (or rebuilds) the token->vocab-index lookup used by
// Predict. Called once after Load/unmarshal.
func (m *Model) index() {
	m.vocabIndex = make(map[string]int, len(m.Vocab))
	for i, tok := range m.Vocab {
		m.vocabIndex[tok] = i
	}
}

// Predict scores tokens (unigrams + adjacent bigrams, already produced
// by Tokenize) and returns the argmax class with its softmax confidence.
func (m *Model) Predict(tokens []string) Prediction {
	if m.vocabIndex == nil {
		m.index()
	}

	logits := make([]float64, len(m.AnchorTypes))
	copy(logits, m.LogPrior)

	for _, tok := range tokens {
		idx, ok := m.vocabIndex[tok]
		if !ok {
			continue
		}
		for c := range logits {
			logits[c] += m.LogProb[c][idx]
		}
	}

	best := 0
	for c := 1; c < len(logits); c++ {
		if logits[c] > logits[best] {
			best = c
		}
	}

	return Prediction{
		AnchorType: m.AnchorTypes[best],
		Confidence: softmax(logits, best),
	}
}

func softmax(logits []float64, idx int) float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(v - maxLogit)
	}
	if sum == 0 {
		return 0
	}
	return math.Exp(logits[idx]-maxLogit) / sum
}

// LoadFile decodes a model artifact from disk.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.index()
	return &m, nil
}

// --- offline training (C3.1) ---

// Document is one labeled training example: provider:market_id plus its
// normalized token stream and ground-truth anchor type.
type Document struct {
	ProviderMarketID string
	Tokens           []string
	AnchorType       model.AnchorType
}

// TrainConfig controls vocabulary selection and smoothing.
type TrainConfig struct {
	MinDF        int     // minimum document frequency, default 3
	MaxVocab     int     // top-N by frequency, default 3500
	Alpha        float64 // Laplace smoothing, default 1.0
	ModelVersion string
}

// DefaultTrainConfig returns spec.md §4.3.1's defaults.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{MinDF: 3, MaxVocab: 3500, Alpha: 1.0}
}

// SplitBucket returns the stable 0-9 bucket for a provider:market_id
// key, used for the deterministic 80/20 train/test split (buckets 0-7
// train, spec.md §4.3.1).
func SplitBucket(providerMarketID string) int {
	var h uint32 = 2166136261 // FNV-1a offset basis
	for i := 0; i < len(providerMarketID); i++ {
		h ^= uint32(providerMarketID[i])
		h *= 16777619
	}
	return int(h % 10)
}

// IsTrainBucket reports whether the key falls in the train split.
func IsTrainBucket(providerMarketID string) bool {
	return SplitBucket(providerMarketID) <= 7
}

// Train builds a Model from labeled documents, using only the
// train-bucket subset of docs (callers pass the full corpus; Train
// filters internally so test-bucket documents never influence the
// vocabulary or the likelihood tables).
func Train(docs []Document, anchorTypes []model.AnchorType, cfg TrainConfig) *Model {
	if cfg.Alpha == 0 {
		cfg.Alpha = 1.0
	}
	if cfg.MinDF == 0 {
		cfg.MinDF = 3
	}
	if cfg.MaxVocab == 0 {
		cfg.MaxVocab = 3500
	}

	var train []Document
	for _, d := range docs {
		if IsTrainBucket(d.ProviderMarketID) {
			train = append(train, d)
		}
	}

	docFreq := map[string]int{}
	termFreq := map[string]int{}
	for _, d := range train {
		seen := map[string]bool{}
		for _, tok := range d.Tokens {
			termFreq[tok]++
			if !seen[tok] {
				docFreq[tok]++
				seen[tok] = true
			}
		}
	}

	type vocabEntry struct {
		token string
		freq  int
	}
	var candidates []vocabEntry
	for tok, df := range docFreq {
		if df >= cfg.MinDF {
			candidates = append(candidates, vocabEntry{tok, termFreq[tok]})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}
		return candidates[i].token < candidates[j].token
	})
	if len(candidates) > cfg.MaxVocab {
		candidates = candidates[:cfg.MaxVocab]
	}

	vocab := make([]string, len(candidates))
	vocabIndex := make(map[string]int, len(candidates))
	for i, c := range candidates {
		vocab[i] = c.token
		vocabIndex[c.token] = i
	}

	classIndex := make(map[model.AnchorType]int, len(anchorTypes))
	for i, a := range anchorTypes {
		classIndex[a] = i
	}

	classDocs := make([]int, len(anchorTypes))
	classTokenCounts := make([][]int, len(anchorTypes))
	classTotalTokens := make([]int, len(anchorTypes))
	for i := range classTokenCounts {
		classTokenCounts[i] = make([]int, len(vocab))
	}

	totalDocs := len(train)
	for _, d := range train {
		ci, ok := classIndex[d.AnchorType]
		if !ok {
			continue
		}
		classDocs[ci]++
		for _, tok := range d.Tokens {
			vi, ok := vocabIndex[tok]
			if !ok {
				continue
			}
			classTokenCounts[ci][vi]++
			classTotalTokens[ci]++
		}
	}

	logPrior := make([]float64, len(anchorTypes))
	logProb := make([][]float64, len(anchorTypes))
	for c := range anchorTypes {
		if totalDocs > 0 && classDocs[c] > 0 {
			logPrior[c] = math.Log(float64(classDocs[c]) / float64(totalDocs))
		} else {
			logPrior[c] = math.Inf(-1)
		}
		logProb[c] = make([]float64, len(vocab))
		denom := float64(classTotalTokens[c]) + cfg.Alpha*float64(len(vocab))
		for v := range vocab {
			logProb[c][v] = math.Log((float64(classTokenCounts[c][v]) + cfg.Alpha) / denom)
		}
	}

	m := &Model{
		ModelVersion: cfg.ModelVersion,
		CreatedAt:    time.Now().UTC(),
		AnchorTypes:  anchorTypes,
		Vocab:        vocab,
		Alpha:        cfg.Alpha,
		LogPrior:     logPrior,
		LogProb:      logProb,
	}
	m.index()
	return m
}

// Save persists the model artifact as JSON.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
