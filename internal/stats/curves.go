package stats

import "math"

// CurvePoint is one generation of a curve aggregated over several runs.
type CurvePoint struct {
	Generation int     `json:"generation"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Max        float64 `json:"max"`
	Runs       int     `json:"runs"`
}

// AggregateCurves merges per-generation series of several runs. Series may
// have different lengths; each point only aggregates the runs that reached
// that generation.
func AggregateCurves(series [][]float64) []CurvePoint {
	var points []CurvePoint
	for gen := 0; ; gen++ {
		values := make([]float64, 0, len(series))
		for _, s := range series {
			if gen < len(s) {
				values = append(values, s[gen])
			}
		}
		if len(values) == 0 {
			return points
		}
		mean, std := avgStd(values)
		points = append(points, CurvePoint{
			Generation: gen,
			Mean:       mean,
			Std:        std,
			Max:        maxFloat(values),
			Runs:       len(values),
		})
	}
}

// RunningBest replaces each value of series by the best value seen up to
// that generation.
func RunningBest(series []float64) []float64 {
	out := make([]float64, len(series))
	best := math.Inf(-1)
	for i, v := range series {
		best = math.Max(best, v)
		out[i] = best
	}
	return out
}

func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func maxFloat(values []float64) float64 {
	best := math.Inf(-1)
	for _, v := range values {
		best = math.Max(best, v)
	}
	return best
}
