package tracker

import (
	"math"
	"sort"
	"time"
)

const varioCapacity = 60

type varioSample struct {
	at   time.Time
	rate float64
}

// variometer keeps a short climb-rate history and reports windowed medians
type variometer struct {
	samples []varioSample
}

func (v *variometer) add(at time.Time, rate float64) {
	if len(v.samples) == varioCapacity {
		copy(v.samples, v.samples[1:])
		v.samples = v.samples[:varioCapacity-1]
	}
	v.samples = append(v.samples, varioSample{at: at, rate: rate})
}

func (v *variometer) summary(now time.Time) Variometer {
	var out Variometer
	last30 := v.window(now, 30*time.Second)
	last60 := v.window(now, 60*time.Second)
	out.Points30s = len(last30)
	out.Points60s = len(last60)
	if len(last30) >= 3 {
		m := median(last30)
		out.Avg30s = &m
	}
	if len(last60) >= 5 {
		m := median(last60)
		out.Avg60s = &m
	}
	return out
}

func (v *variometer) window(now time.Time, d time.Duration) []float64 {
	cutoff := now.Add(-d)
	var rates []float64
	for _, s := range v.samples {
		if !s.at.Before(cutoff) {
			rates = append(rates, s.rate)
		}
	}
	return rates
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	var m float64
	if n%2 == 1 {
		m = sorted[n/2]
	} else {
		m = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return math.Round(m*100) / 100
}
