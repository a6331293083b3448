package indicators

import "math"

// RollingMean returns the mean of each trailing window (current value included).
func RollingMean(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for _, v := range values[i-window+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// RollingStd returns the sample standard deviation (n-1) of each trailing window.
func RollingStd(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window < 2 {
		return out
	}
	means := RollingMean(values, window)
	for i := window - 1; i < len(values); i++ {
		if math.IsNaN(means[i]) {
			continue
		}
		ss := 0.0
		for _, v := range values[i-window+1 : i+1] {
			d := v - means[i]
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// RollingMax returns the maximum of each trailing window.
func RollingMax(values []float64, window int) []float64 {
	return rollingExtreme(values, window, math.Max)
}

// RollingMin returns the minimum of each trailing window.
func RollingMin(values []float64, window int) []float64 {
	return rollingExtreme(values, window, math.Min)
}

func rollingExtreme(values []float64, window int, pick func(a, b float64) float64) []float64 {
	out := nanSeries(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		ext := values[i-window+1]
		for _, v := range values[i-window+2 : i+1] {
			ext = pick(ext, v)
		}
		out[i] = ext
	}
	return out
}

// PctChange returns values[i]/values[i-1] - 1. A zero predecessor yields +Inf for a
// positive value and NaN otherwise.
func PctChange(values []float64) []float64 {
	out := nanSeries(len(values))
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		switch {
		case prev != 0:
			out[i] = values[i]/prev - 1
		case values[i] > 0:
			out[i] = math.Inf(1)
		}
	}
	return out
}

// Shift moves a series forward by n positions, filling the head with NaN.
func Shift(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	for i := n; i < len(values); i++ {
		if i-n >= 0 {
			out[i] = values[i-n]
		}
	}
	return out
}

// Mean returns the arithmetic mean of the valid values, or 0 if none.
func Mean(values []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if Valid(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// StdDev returns the sample standard deviation of the valid values, or 0 with fewer than two.
func StdDev(values []float64) float64 {
	mean := Mean(values)
	ss, n := 0.0, 0
	for _, v := range values {
		if Valid(v) {
			ss += (v - mean) * (v - mean)
			n++
		}
	}
	if n < 2 {
		return 0
	}
	return math.Sqrt(ss / float64(n-1))
}
