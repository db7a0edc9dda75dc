package tree

import (
	"math"
)

const protectionEps = 1e-9

// Op is an internal-node operator. Partial returns the derivative of Apply
// with respect to argument i at the given arguments; it drives the backward
// pass that the gradient refiner runs over embedded constants.
type Op interface {
	Name() string
	Arity() int
	Apply(args []float64) float64
	Partial(args []float64, i int) float64
}

type Plus struct{}

func (Plus) Name() string                 { return "+" }
func (Plus) Arity() int                   { return 2 }
func (Plus) Apply(args []float64) float64 { return args[0] + args[1] }
func (Plus) Partial([]float64, int) float64 {
	return 1
}

type Minus struct{}

func (Minus) Name() string                 { return "-" }
func (Minus) Arity() int                   { return 2 }
func (Minus) Apply(args []float64) float64 { return args[0] - args[1] }
func (Minus) Partial(_ []float64, i int) float64 {
	if i == 0 {
		return 1
	}
	return -1
}

type Times struct{}

func (Times) Name() string                 { return "*" }
func (Times) Arity() int                   { return 2 }
func (Times) Apply(args []float64) float64 { return args[0] * args[1] }
func (Times) Partial(args []float64, i int) float64 {
	return args[1-i]
}

// Div divides by sign(b)*(|b|+eps) so the result stays finite near b = 0.
type Div struct{}

func (Div) Name() string { return "/" }
func (Div) Arity() int   { return 2 }
func (Div) Apply(args []float64) float64 {
	return args[0] / protectedDenominator(args[1])
}
func (Div) Partial(args []float64, i int) float64 {
	d := protectedDenominator(args[1])
	if i == 0 {
		return 1 / d
	}
	return -args[0] / (d * d)
}

type Sin struct{}

func (Sin) Name() string                 { return "sin" }
func (Sin) Arity() int                   { return 1 }
func (Sin) Apply(args []float64) float64 { return math.Sin(args[0]) }
func (Sin) Partial(args []float64, _ int) float64 {
	return math.Cos(args[0])
}

type Cos struct{}

func (Cos) Name() string                 { return "cos" }
func (Cos) Arity() int                   { return 1 }
func (Cos) Apply(args []float64) float64 { return math.Cos(args[0]) }
func (Cos) Partial(args []float64, _ int) float64 {
	return -math.Sin(args[0])
}

// Exp clamps its argument to keep values and gradients finite.
type Exp struct{}

func (Exp) Name() string { return "exp" }
func (Exp) Arity() int   { return 1 }
func (Exp) Apply(args []float64) float64 {
	return math.Exp(clampExpArg(args[0]))
}
func (Exp) Partial(args []float64, _ int) float64 {
	return math.Exp(clampExpArg(args[0]))
}

// Log computes log(|a|+eps).
type Log struct{}

func (Log) Name() string { return "log" }
func (Log) Arity() int   { return 1 }
func (Log) Apply(args []float64) float64 {
	return math.Log(math.Abs(args[0]) + protectionEps)
}
func (Log) Partial(args []float64, _ int) float64 {
	return signNonZero(args[0]) / (math.Abs(args[0]) + protectionEps)
}

type Square struct{}

func (Square) Name() string                 { return "square" }
func (Square) Arity() int                   { return 1 }
func (Square) Apply(args []float64) float64 { return args[0] * args[0] }
func (Square) Partial(args []float64, _ int) float64 {
	return 2 * args[0]
}

// Max is differentiable almost everywhere; the tie goes to the first argument.
type Max struct{}

func (Max) Name() string                 { return "max" }
func (Max) Arity() int                   { return 2 }
func (Max) Apply(args []float64) float64 { return math.Max(args[0], args[1]) }
func (Max) Partial(args []float64, i int) float64 {
	if (args[0] >= args[1]) == (i == 0) {
		return 1
	}
	return 0
}

type Min struct{}

func (Min) Name() string                 { return "min" }
func (Min) Arity() int                   { return 2 }
func (Min) Apply(args []float64) float64 { return math.Min(args[0], args[1]) }
func (Min) Partial(args []float64, i int) float64 {
	if (args[0] <= args[1]) == (i == 0) {
		return 1
	}
	return 0
}

func protectedDenominator(b float64) float64 {
	return signNonZero(b) * (math.Abs(b) + protectionEps)
}

func signNonZero(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func clampExpArg(v float64) float64 {
	const bound = 80
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// DefaultInternals is the operator vocabulary used when a run does not supply
// its own.
func DefaultInternals() []Op {
	return []Op{Plus{}, Minus{}, Times{}, Div{}, Sin{}, Cos{}, Log{}, Square{}, Max{}, Min{}}
}
