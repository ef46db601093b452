package main

import (
	"math"
	"testing"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

func TestChannelStats(t *testing.T) {
	tex := atmosphere.NewTexture(2, 2, 1, 3)
	// R: 1 2 3 4, G: constant 5, B: 0 0 0 8
	copy(tex.Data, []float32{
		1, 5, 0,
		2, 5, 0,
		3, 5, 0,
		4, 5, 8,
	})

	stats := channelStats(tex)
	if len(stats) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(stats))
	}

	tests := []struct {
		channel  int
		expected channelStat
	}{
		// stat.MeanStdDev returns the sample (n-1) standard deviation.
		{0, channelStat{Min: 1, Max: 4, Mean: 2.5, StdDev: math.Sqrt(5.0 / 3.0)}},
		{1, channelStat{Min: 5, Max: 5, Mean: 5, StdDev: 0}},
		{2, channelStat{Min: 0, Max: 8, Mean: 2, StdDev: 4}},
	}
	for _, tt := range tests {
		got := stats[tt.channel]
		if got.Min != tt.expected.Min || got.Max != tt.expected.Max ||
			math.Abs(got.Mean-tt.expected.Mean) > 1e-12 || math.Abs(got.StdDev-tt.expected.StdDev) > 1e-12 {
			t.Errorf("channel %s: expected %+v, got %+v", channelNames[tt.channel], tt.expected, got)
		}
	}
}
