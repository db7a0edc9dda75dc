package evo

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"evotree/internal/model"
)

// summarize computes the per-generation diagnostic record from the live
// population and the current champion archive entry.
func (e *Engine) summarize(generation int) model.GenerationDiagnostics {
	fitnesses := make([]float64, len(e.population))
	winRatioSum := 0.0
	for i, ind := range e.population {
		fitnesses[i] = ind.Fitness
		if ind.Games > 0 {
			winRatioSum += float64(ind.Wins) / float64(ind.Games)
		}
	}

	champion := e.bestOfGens[len(e.bestOfGens)-1]
	return model.GenerationDiagnostics{
		Generation:    generation,
		BestFitness:   champion.Fitness,
		MeanFitness:   mean(fitnesses),
		MinFitness:    minOf(fitnesses),
		MaxFitness:    maxOf(fitnesses),
		MedianFitness: median(fitnesses),
		Variance:      variance(fitnesses),
		StdDev:        math.Sqrt(variance(fitnesses)),
		MeanWinRatio:  winRatioSum / float64(len(e.population)),
		ChampionWins:  champion.Wins,
		ChampionGames: champion.Games,
		ChampionSize:  champion.Size(),
		Evaluations:   e.numEvals,
	}
}

func writeGenerationReport(w io.Writer, d model.GenerationDiagnostics, elapsed time.Duration) {
	fmt.Fprintf(w, "gen %d\tbest %.3f\tmean %.3f\tmin %.3f\tmax %.3f\tmedian %.3f\tstd %.3f\twin-ratio %.2f\tchamp %d/%d size %d\tevals %s\telapsed %s\n",
		d.Generation,
		d.BestFitness,
		d.MeanFitness,
		d.MinFitness,
		d.MaxFitness,
		d.MedianFitness,
		d.StdDev,
		d.MeanWinRatio,
		d.ChampionWins,
		d.ChampionGames,
		d.ChampionSize,
		humanize.Comma(int64(d.Evaluations)),
		elapsed.Round(time.Millisecond),
	)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// variance is the sample variance; populations of fewer than two individuals
// or of uniform fitness report zero rather than failing.
func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	total := 0.0
	for _, v := range values {
		d := v - m
		total += d * d
	}
	return total / float64(len(values)-1)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}
