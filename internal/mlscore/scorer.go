// Package mlscore provides the numeric risk scorer: a pre-trained
// binary classifier over a transaction's structured fields.
package mlscore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/opensource-finance/kite/internal/domain"
)

// Scorer evaluates transactions against classifier artifacts exported
// by the offline training job. Artifact load failures are soft: the
// scorer reports Unavailable and the engine substitutes the documented
// fallback, it never fails the caller.
type Scorer struct {
	preprocessorPath string
	weightsPath      string

	mu  sync.Mutex
	pre *preprocessorSpec
	net *networkSpec
}

// New creates a numeric scorer. Artifacts are loaded lazily on the
// first call and cached for the process lifetime.
func New(cfg domain.ScoringConfig) *Scorer {
	return &Scorer{
		preprocessorPath: cfg.PreprocessorPath,
		weightsPath:      cfg.WeightsPath,
	}
}

// Score returns the classifier probability for a transaction.
// Never panics and never returns an error; any load, shape, or field
// problem yields an Unavailable result.
func (s *Scorer) Score(ctx context.Context, tx *domain.Transaction) (result domain.ScoreResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("numeric scorer panic", "panic", r)
			result = domain.Unavailable(fmt.Sprintf("panic: %v", r))
		}
	}()

	pre, net, err := s.artifacts()
	if err != nil {
		slog.Warn("numeric scorer artifacts unavailable", "error", err)
		return domain.Unavailable(err.Error())
	}

	vec, err := featureVector(pre, tx)
	if err != nil {
		slog.Warn("numeric scorer feature extraction failed",
			"account_ref", tx.AccountRef,
			"error", err,
		)
		return domain.Unavailable(err.Error())
	}

	return domain.Scored(forward(net, vec), "")
}

// artifacts returns the cached artifacts, loading them on first use.
// A failed load is retried on the next call so a late artifact deploy
// recovers without a restart.
func (s *Scorer) artifacts() (*preprocessorSpec, *networkSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pre != nil && s.net != nil {
		return s.pre, s.net, nil
	}

	pre, net, err := loadArtifacts(s.preprocessorPath, s.weightsPath)
	if err != nil {
		return nil, nil, err
	}

	s.pre = pre
	s.net = net
	slog.Info("classifier artifacts loaded",
		"features", pre.featureCount(),
		"hidden_units", len(net.Hidden.Biases),
	)
	return s.pre, s.net, nil
}

// forward runs the feature vector through the network: ReLU hidden
// layer, sigmoid output.
func forward(net *networkSpec, vec []float64) float64 {
	hidden := make([]float64, len(net.Hidden.Biases))
	for j := range hidden {
		sum := net.Hidden.Biases[j]
		for i, v := range vec {
			sum += v * net.Hidden.Weights[i][j]
		}
		if sum > 0 {
			hidden[j] = sum
		}
	}

	out := net.Output.Biases[0]
	for i, h := range hidden {
		out += h * net.Output.Weights[i][0]
	}

	return sigmoid(out)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
