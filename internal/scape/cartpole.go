package scape

import (
	"context"
	"math"
	"sync/atomic"

	"evotree/internal/evo"
	"evotree/internal/model"
	"evotree/internal/tree"
)

func init() {
	if err := Register("cartpole", func() Scape { return NewCartPole() }); err != nil {
		panic(err)
	}
}

// CartPole is a 1D balancing control task: the policy picks a push direction
// each step and earns reward for keeping the cart near the center. Episodes
// start from a fixed grid of positions so a deterministic policy scores
// deterministically; harder reseeds widen the grid and shorten the horizon.
type CartPole struct {
	difficulty atomic.Int32
}

func NewCartPole() *CartPole {
	return &CartPole{}
}

func (*CartPole) Name() string {
	return "cartpole"
}

func (*CartPole) StateSize() int { return 2 }
func (*CartPole) Actions() int   { return 2 }

type cartPoleLevel struct {
	startPositions  []float64
	stepsPerEpisode int
}

var cartPoleLevels = []cartPoleLevel{
	{startPositions: []float64{-0.8, -0.4, 0.0, 0.4, 0.8}, stepsPerEpisode: 60},
	{startPositions: []float64{-1.0, -0.5, 0.0, 0.5, 1.0}, stepsPerEpisode: 48},
	{startPositions: []float64{-1.2, -0.6, 0.0, 0.6, 1.2}, stepsPerEpisode: 48},
}

func (c *CartPole) Reseed(harder bool) {
	if !harder {
		return
	}
	level := c.difficulty.Load()
	if int(level) < len(cartPoleLevels)-1 {
		c.difficulty.Store(level + 1)
	}
}

// Level reports the current difficulty level, for diagnostics and tests.
func (c *CartPole) Level() int {
	return int(c.difficulty.Load())
}

const (
	cartPoleDT      = 0.1
	cartPoleSpring  = 0.5
	cartPoleDamping = 0.1
	cartPoleForce   = 1.0
	cartPoleFailX   = 2.4
)

func (c *CartPole) Evaluate(ctx context.Context, policy *tree.Multitree) (evo.Result, error) {
	level := cartPoleLevels[c.difficulty.Load()]

	var res evo.Result
	for _, start := range level.startPositions {
		if err := ctx.Err(); err != nil {
			return evo.Result{}, err
		}

		x, v := start, 0.0
		survived := true
		res.Games++

		for step := 0; step < level.stepsPerEpisode; step++ {
			state := []float64{x, v}
			action := policy.ArgMax(state)
			force := cartPoleForce
			if action == 0 {
				force = -cartPoleForce
			}

			accel := force - cartPoleSpring*x - cartPoleDamping*v
			v += cartPoleDT * accel
			x += cartPoleDT * v

			reward := 1 - math.Min(math.Abs(x)/cartPoleFailX, 1)
			res.Fitness += reward

			transition := model.Transition{State: state, Action: action, Reward: reward}
			failed := math.Abs(x) > cartPoleFailX
			if !failed && step < level.stepsPerEpisode-1 {
				transition.NextState = []float64{x, v}
			}
			res.Transitions = append(res.Transitions, transition)

			if failed {
				survived = false
				break
			}
		}
		if survived {
			res.Wins++
		}
	}
	return res, nil
}
