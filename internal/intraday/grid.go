// Package intraday builds per-minute trading-session series from irregular
// upstream samples and persists them once the session closes.
package intraday

import (
	"sort"
	"time"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
)

// DefaultMaxPoints is the sparkline size after downsampling.
const DefaultMaxPoints = 72

// Reindex places samples on day's one-minute session grid, stopping at
// upTo (inclusive, clamped to the session). Minutes before the first trade
// take the first price (backward fill); later gaps carry the previous price
// (forward fill). Filled points have zero volume and Filled set. With no
// usable samples the result is empty.
func Reindex(day time.Time, samples []model.SessionPoint, upTo time.Time) []model.SessionPoint {
	grid := markethours.SessionGrid(day)
	if len(grid) == 0 {
		return nil
	}
	end := len(grid)
	if !upTo.IsZero() {
		cut := upTo.In(markethours.ICT).Truncate(time.Minute)
		n := sort.Search(len(grid), func(i int) bool { return grid[i].After(cut) })
		if n < end {
			end = n
		}
	}
	if end == 0 {
		return nil
	}

	byMinute := Dedupe(samples)
	if len(byMinute) == 0 {
		return nil
	}
	index := make(map[int64]model.SessionPoint, len(byMinute))
	for _, p := range byMinute {
		index[p.TS.Unix()] = p
	}

	var first *model.SessionPoint
	for i := 0; i < end; i++ {
		if p, ok := index[grid[i].Unix()]; ok {
			first = &p
			break
		}
	}
	if first == nil {
		return nil
	}

	out := make([]model.SessionPoint, end)
	last := first.Price
	for i := 0; i < end; i++ {
		if p, ok := index[grid[i].Unix()]; ok {
			out[i] = model.SessionPoint{TS: grid[i], Price: p.Price, Volume: p.Volume}
			last = p.Price
			continue
		}
		out[i] = model.SessionPoint{TS: grid[i], Price: last, Filled: true}
	}
	return out
}

// Dedupe truncates sample times to the minute (ICT) and keeps the latest
// positive sample per minute, ordered by time.
func Dedupe(samples []model.SessionPoint) []model.SessionPoint {
	byMinute := make(map[int64]model.SessionPoint, len(samples))
	for _, s := range samples {
		if s.Price <= 0 {
			continue
		}
		ts := s.TS.In(markethours.ICT).Truncate(time.Minute)
		byMinute[ts.Unix()] = model.SessionPoint{TS: ts, Price: s.Price, Volume: s.Volume}
	}
	out := make([]model.SessionPoint, 0, len(byMinute))
	for _, p := range byMinute {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

// Downsample reduces points to at most maxPoints by fixed-stride
// subsampling. The last real trade is always the final point.
func Downsample(points []model.SessionPoint, maxPoints int) []model.SparkPoint {
	if len(points) == 0 {
		return []model.SparkPoint{}
	}
	if maxPoints < 2 {
		maxPoints = 2
	}

	var out []model.SparkPoint
	if len(points) <= maxPoints {
		out = make([]model.SparkPoint, len(points))
		for i, p := range points {
			out[i] = spark(p)
		}
	} else {
		stride := (len(points) + maxPoints - 2) / (maxPoints - 1)
		out = make([]model.SparkPoint, 0, maxPoints)
		for i := 0; i < len(points); i += stride {
			out = append(out, spark(points[i]))
		}
	}

	trade := lastTrade(points)
	tail := &out[len(out)-1]
	switch {
	case trade.TS.Unix() > tail.T:
		out = append(out, spark(trade))
	default:
		tail.P = trade.Price
	}
	return out
}

// Sparkline reindexes samples and downsamples the result.
func Sparkline(day time.Time, samples []model.SessionPoint, upTo time.Time, maxPoints int) []model.SparkPoint {
	return Downsample(Reindex(day, samples, upTo), maxPoints)
}

func lastTrade(points []model.SessionPoint) model.SessionPoint {
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].Filled {
			return points[i]
		}
	}
	return points[len(points)-1]
}

func spark(p model.SessionPoint) model.SparkPoint {
	return model.SparkPoint{T: p.TS.Unix(), P: p.Price}
}
