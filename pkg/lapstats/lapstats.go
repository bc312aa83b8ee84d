// Package lapstats provides pure statistical functions over lap times in
// milliseconds. No I/O, no state.
package lapstats

import (
	"math"
	"sort"
)

// Best returns the minimum lap time, or 0 for an empty input.
func Best(times []int64) int64 {
	if len(times) == 0 {
		return 0
	}

	best := times[0]

	for _, t := range times[1:] {
		if t < best {
			best = t
		}
	}

	return best
}

func Mean(times []int64) float64 {
	if len(times) == 0 {
		return 0
	}

	var sum int64

	for _, t := range times {
		sum += t
	}

	return float64(sum) / float64(len(times))
}

func Median(times []int64) float64 {
	if len(times) == 0 {
		return 0
	}

	sorted := make([]int64, len(times))
	copy(sorted, times)

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2

	if len(sorted)%2 == 0 {
		return float64(sorted[mid-1]+sorted[mid]) / 2
	}

	return float64(sorted[mid])
}

// SampleStdDev returns the sample standard deviation (N-1 denominator),
// or 0 when fewer than two lap times are given.
func SampleStdDev(times []int64) float64 {
	if len(times) < 2 {
		return 0
	}

	mean := Mean(times)

	var sumSquares float64

	for _, t := range times {
		diff := float64(t) - mean
		sumSquares += diff * diff
	}

	return math.Sqrt(sumSquares / float64(len(times)-1))
}

// PaceDropoffScore measures late-stint lap time degradation on a 0-100
// scale, 100 meaning no degradation. It compares the mean of the first
// quarter of laps against the last quarter. Requires at least 8 lap times;
// ok is false otherwise. Lap times must be in running order.
func PaceDropoffScore(times []int64) (score float64, ok bool) {
	if len(times) < 8 {
		return 0, false
	}

	quarter := len(times) / 4

	firstAvg := Mean(times[:quarter])
	lastAvg := Mean(times[len(times)-quarter:])

	degradationPct := (lastAvg - firstAvg) / firstAvg * 100

	return Round2(Clamp(100-degradationPct*20, 0, 100)), true
}

// TrafficTimeLoss estimates milliseconds lost to anomalously slow laps.
// Laps slower than median+stddev are treated as traffic laps, laps at or
// under the median as clean laps; the loss is the mean difference between
// the two sets multiplied by the traffic lap count. Requires at least 5 lap
// times; ok is false otherwise. An empty traffic or clean set yields 0.
func TrafficTimeLoss(times []int64) (lossMs int64, ok bool) {
	if len(times) < 5 {
		return 0, false
	}

	median := Median(times)
	stddev := SampleStdDev(times)
	threshold := median + stddev

	var traffic, clean []int64

	for _, t := range times {
		if float64(t) > threshold {
			traffic = append(traffic, t)
		} else if float64(t) <= median {
			clean = append(clean, t)
		}
	}

	if len(traffic) == 0 || len(clean) == 0 {
		return 0, true
	}

	lost := (Mean(traffic) - Mean(clean)) * float64(len(traffic))

	return int64(math.Round(lost)), true
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}

	if v > max {
		return max
	}

	return v
}
