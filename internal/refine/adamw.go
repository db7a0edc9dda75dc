package refine

import (
	"math"

	"evotree/internal/tree"
)

// adamW applies decoupled weight decay before the adaptive moment update, the
// same ordering AdamW uses: p -= lr*wd*p, then p -= lr*mhat/(sqrt(vhat)+eps).
type adamW struct {
	cfg   Config
	steps int
	m     []float64
	v     []float64
	vMax  []float64
}

func newAdamW(size int, cfg Config) *adamW {
	opt := &adamW{
		cfg: cfg,
		m:   make([]float64, size),
		v:   make([]float64, size),
	}
	if cfg.AMSGrad {
		opt.vMax = make([]float64, size)
	}
	return opt
}

func (o *adamW) step(params []*tree.Node, grads []float64) {
	o.steps++
	t := float64(o.steps)
	bc1 := 1 - math.Pow(o.cfg.Beta1, t)
	bc2 := 1 - math.Pow(o.cfg.Beta2, t)

	for i, p := range params {
		g := grads[i]
		o.m[i] = o.cfg.Beta1*o.m[i] + (1-o.cfg.Beta1)*g
		o.v[i] = o.cfg.Beta2*o.v[i] + (1-o.cfg.Beta2)*g*g

		mHat := o.m[i] / bc1
		vHat := o.v[i] / bc2
		if o.vMax != nil {
			if vHat > o.vMax[i] {
				o.vMax[i] = vHat
			}
			vHat = o.vMax[i]
		}

		p.Value -= o.cfg.LearningRate * o.cfg.WeightDecay * p.Value
		p.Value -= o.cfg.LearningRate * mHat / (math.Sqrt(vHat) + o.cfg.Epsilon)
	}
}
