package main

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

var channelNames = []string{"R", "G", "B", "A"}

// channelStat summarizes one channel of a LUT.
type channelStat struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// channelStats returns the statistics of every channel of tex.
func channelStats(tex *atmosphere.Texture) []channelStat {
	values := make([][]float64, tex.Channels)
	for c := range values {
		values[c] = make([]float64, 0, tex.Texels())
	}
	for i, v := range tex.Data {
		c := i % tex.Channels
		values[c] = append(values[c], float64(v))
	}

	stats := make([]channelStat, tex.Channels)
	for c, vs := range values {
		if len(vs) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(vs, nil)
		stats[c] = channelStat{
			Min:    floats.Min(vs),
			Max:    floats.Max(vs),
			Mean:   mean,
			StdDev: std,
		}
	}
	return stats
}
