// Package refine tunes the numeric constants of a champion individual with a
// bounded number of gradient-descent steps over replayed transitions, in the
// style of deep Q-learning: per-iteration target snapshot, smooth L1 loss,
// gradient value clipping, and an AdamW optimizer step.
package refine

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"evotree/internal/replay"
	"evotree/internal/tree"
)

type Config struct {
	Iterations   int     // gradient steps, default 500
	BatchSize    int     // minibatch size, default 128
	Gamma        float64 // discount for non-terminal targets, default 0.99
	LearningRate float64 // default 1e-3
	GradClip     float64 // per-constant gradient magnitude bound, default 100
	WeightDecay  float64 // decoupled weight decay, default 0.01
	Beta1        float64 // default 0.9
	Beta2        float64 // default 0.999
	Epsilon      float64 // default 1e-8
	AMSGrad      bool
}

// DefaultConfig returns the refinement settings used when a run does not
// override them.
func DefaultConfig() Config {
	return Config{
		Iterations:   500,
		BatchSize:    128,
		Gamma:        0.99,
		LearningRate: 1e-3,
		GradClip:     100,
		WeightDecay:  0.01,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		AMSGrad:      true,
	}
}

// Report summarizes one refinement pass. Skipped refinements are not errors:
// a champion without constants or a replay buffer at or below the minibatch
// size leaves the individual untouched.
type Report struct {
	Iterations int     `json:"iterations"`
	FirstLoss  float64 `json:"first_loss"`
	FinalLoss  float64 `json:"final_loss"`
	Skipped    bool    `json:"skipped"`
	SkipReason string  `json:"skip_reason,omitempty"`
}

// Refiner performs bounded local optimization of a champion's constants. The
// champion is mutated in place; nothing else is touched.
type Refiner interface {
	Name() string
	Refine(ctx context.Context, champion *tree.Multitree, buf *replay.Buffer, rng *rand.Rand) (Report, error)
}

type DQNRefiner struct {
	cfg Config
}

// NewDQNRefiner fills zero-valued fields with the DefaultConfig values.
// AMSGrad is the one exception: a false value stays off, so callers wanting
// the default optimizer should start from DefaultConfig.
func NewDQNRefiner(cfg Config) (*DQNRefiner, error) {
	def := DefaultConfig()
	if cfg.Iterations == 0 {
		cfg.Iterations = def.Iterations
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Gamma == 0 {
		cfg.Gamma = def.Gamma
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.GradClip == 0 {
		cfg.GradClip = def.GradClip
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = def.Beta1
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = def.Beta2
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.WeightDecay == 0 {
		cfg.WeightDecay = def.WeightDecay
	}

	if cfg.Iterations < 0 {
		return nil, fmt.Errorf("iterations must be > 0, got %d", cfg.Iterations)
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.Gamma < 0 || cfg.Gamma > 1 {
		return nil, fmt.Errorf("gamma must be in [0,1], got %v", cfg.Gamma)
	}
	if cfg.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %v", cfg.LearningRate)
	}
	if cfg.GradClip < 0 {
		return nil, fmt.Errorf("gradient clip must be > 0, got %v", cfg.GradClip)
	}
	if cfg.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay must be >= 0, got %v", cfg.WeightDecay)
	}
	if cfg.Beta1 <= 0 || cfg.Beta1 >= 1 || cfg.Beta2 <= 0 || cfg.Beta2 >= 1 {
		return nil, fmt.Errorf("betas must be in (0,1), got %v and %v", cfg.Beta1, cfg.Beta2)
	}
	return &DQNRefiner{cfg: cfg}, nil
}

func (*DQNRefiner) Name() string {
	return "dqn"
}

func (r *DQNRefiner) Refine(ctx context.Context, champion *tree.Multitree, buf *replay.Buffer, rng *rand.Rand) (Report, error) {
	if champion == nil {
		return Report{}, fmt.Errorf("champion is required")
	}
	if rng == nil {
		return Report{}, fmt.Errorf("random source is required")
	}

	constants := champion.Constants()
	if len(constants) == 0 {
		return Report{Skipped: true, SkipReason: "champion has no differentiable constants"}, nil
	}
	if buf == nil || buf.Len() <= r.cfg.BatchSize {
		return Report{Skipped: true, SkipReason: "replay memory not larger than minibatch"}, nil
	}

	opt := newAdamW(len(constants), r.cfg)
	report := Report{Iterations: r.cfg.Iterations}

	for iter := 0; iter < r.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		// Frozen snapshot providing this iteration's target values.
		target := champion.Clone()

		batch, err := buf.Sample(rng, r.cfg.BatchSize)
		if err != nil {
			return Report{}, err
		}

		champion.ZeroGrad()
		lossSum := 0.0
		invBatch := 1 / float64(len(batch))
		for _, transition := range batch {
			predicted := champion.QValue(transition.State, transition.Action)
			expected := transition.Reward
			if !transition.Terminal() {
				expected += r.cfg.Gamma * target.MaxOutput(transition.NextState)
			}
			diff := predicted - expected
			lossSum += smoothL1(diff)
			champion.Backprop(transition.State, transition.Action, smoothL1Grad(diff)*invBatch)
		}

		loss := lossSum * invBatch
		if iter == 0 {
			report.FirstLoss = loss
		}
		report.FinalLoss = loss

		grads := make([]float64, len(constants))
		for i, c := range constants {
			grads[i] = clamp(c.Grad, r.cfg.GradClip)
		}
		opt.step(constants, grads)
	}
	return report, nil
}

// smoothL1 is the Huber loss with transition point 1.
func smoothL1(d float64) float64 {
	if a := math.Abs(d); a < 1 {
		return 0.5 * d * d
	} else {
		return a - 0.5
	}
}

func smoothL1Grad(d float64) float64 {
	if math.Abs(d) < 1 {
		return d
	}
	if d > 0 {
		return 1
	}
	return -1
}

func clamp(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
