package strategy

import (
	"math"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// Every indicator returns a series aligned to its input. Positions before
// the first full lookback window hold NaN.

func closes(c []domain.Candle) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i].Close
	}
	return out
}

func volumes(c []domain.Candle) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i].Volume
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the n-period simple moving average of x. NaN inputs restart the
// window.
func SMA(x []float64, n int) []float64 {
	out := nanSeries(len(x))
	if n <= 0 {
		return out
	}
	var sum float64
	count := 0
	for i := range x {
		if math.IsNaN(x[i]) {
			sum, count = 0, 0
			continue
		}
		sum += x[i]
		count++
		if count > n {
			sum -= x[i-n]
			count = n
		}
		if count == n {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA is the n-period exponential moving average of x, seeded with the SMA
// of the first n values.
func EMA(x []float64, n int) []float64 {
	out := nanSeries(len(x))
	if n <= 0 || len(x) < n {
		return out
	}
	var seed float64
	for i := 0; i < n; i++ {
		seed += x[i]
	}
	prev := seed / float64(n)
	out[n-1] = prev
	alpha := 2.0 / float64(n+1)
	for i := n; i < len(x); i++ {
		prev = alpha*x[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// wilder smooths x with Wilder's running average (alpha 1/n), seeded with
// the mean of the first n valid values starting at start.
func wilder(x []float64, n, start int) []float64 {
	out := nanSeries(len(x))
	if n <= 0 || len(x)-start < n {
		return out
	}
	var seed float64
	for i := start; i < start+n; i++ {
		seed += x[i]
	}
	prev := seed / float64(n)
	out[start+n-1] = prev
	for i := start + n; i < len(x); i++ {
		prev = (prev*float64(n-1) + x[i]) / float64(n)
		out[i] = prev
	}
	return out
}

// RSI is the n-period relative strength index with Wilder smoothing.
func RSI(x []float64, n int) []float64 {
	out := nanSeries(len(x))
	if n <= 0 || len(x) <= n {
		return out
	}
	gains := make([]float64, len(x))
	losses := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := wilder(gains, n, 1)
	avgLoss := wilder(losses, n, 1)
	for i := n; i < len(x); i++ {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case l == 0 && g == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// ATR is the n-period average true range with Wilder smoothing.
func ATR(c []domain.Candle, n int) []float64 {
	if len(c) == 0 {
		return nil
	}
	tr := make([]float64, len(c))
	tr[0] = c[0].High - c[0].Low
	for i := 1; i < len(c); i++ {
		prevClose := c[i-1].Close
		tr[i] = math.Max(c[i].High-c[i].Low,
			math.Max(math.Abs(c[i].High-prevClose), math.Abs(c[i].Low-prevClose)))
	}
	return wilder(tr, n, 1)
}

// StdDev is the rolling population standard deviation of x over n.
func StdDev(x []float64, n int) []float64 {
	out := nanSeries(len(x))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(x); i++ {
		var sum, sumSq float64
		for _, v := range x[i-n+1 : i+1] {
			sum += v
			sumSq += v * v
		}
		mean := sum / float64(n)
		out[i] = math.Sqrt(math.Max(sumSq/float64(n)-mean*mean, 0))
	}
	return out
}

// Bollinger returns the lower, middle and upper bands over n periods at k
// standard deviations.
func Bollinger(x []float64, n int, k float64) (lower, middle, upper []float64) {
	middle = SMA(x, n)
	sd := StdDev(x, n)
	lower = nanSeries(len(x))
	upper = nanSeries(len(x))
	for i := range x {
		if math.IsNaN(middle[i]) || math.IsNaN(sd[i]) {
			continue
		}
		lower[i] = middle[i] - k*sd[i]
		upper[i] = middle[i] + k*sd[i]
	}
	return lower, middle, upper
}

// StochRSI applies the stochastic oscillator over `length` periods to the
// RSI of x and smooths it into %K (kSmooth) and %D (dSmooth), both 0-100.
func StochRSI(x []float64, rsiLength, length, kSmooth, dSmooth int) (k, d []float64) {
	rsi := RSI(x, rsiLength)
	stoch := nanSeries(len(x))
	for i := length - 1; i < len(x) && length > 0; i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		ok := true
		for _, v := range rsi[i-length+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if !ok {
			continue
		}
		if hi == lo {
			stoch[i] = 0
			continue
		}
		stoch[i] = (rsi[i] - lo) / (hi - lo) * 100
	}
	k = SMA(stoch, kSmooth)
	d = SMA(k, dSmooth)
	return k, d
}
