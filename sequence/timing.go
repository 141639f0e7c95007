package sequence

import (
	"fmt"
	"time"
)

// FlushTiming holds the minimum dwell of every flush stage. Buffer is added to
// each of them.
type FlushTiming struct {
	LiftTube           time.Duration `yaml:"lift_tube"`
	AirBubble          time.Duration `yaml:"air_bubble"`
	FlushLine          time.Duration `yaml:"flush_line"`
	FreshwaterToDevice time.Duration `yaml:"freshwater_to_device"`
	FreshwaterFlush    time.Duration `yaml:"freshwater_flush"`
	FinalAir           time.Duration `yaml:"final_air"`
	Buffer             time.Duration `yaml:"buffer"`
	MaxWaterTempC      float64       `yaml:"max_water_temp_c"`
}

const (
	ProfileProduction = "production"
	ProfileTest       = "test"
)

var (
	ProductionFlushTiming = FlushTiming{
		LiftTube:           10 * time.Second,
		AirBubble:          90 * time.Second,
		FlushLine:          5 * time.Second,
		FreshwaterToDevice: 35 * time.Second,
		FreshwaterFlush:    150 * time.Second,
		FinalAir:           150 * time.Second,
		Buffer:             10 * time.Second,
		MaxWaterTempC:      27,
	}

	// TestFlushTiming shortens the dwell times for bench runs
	TestFlushTiming = FlushTiming{
		LiftTube:           5 * time.Second,
		AirBubble:          10 * time.Second,
		FlushLine:          5 * time.Second,
		FreshwaterToDevice: 10 * time.Second,
		FreshwaterFlush:    10 * time.Second,
		FinalAir:           10 * time.Second,
		Buffer:             10 * time.Second,
		MaxWaterTempC:      100,
	}
)

// FlushTimingFor returns the built-in timing table for a profile name
func FlushTimingFor(profile string) (FlushTiming, error) {
	switch profile {
	case "", ProfileProduction:
		return ProductionFlushTiming, nil
	case ProfileTest:
		return TestFlushTiming, nil
	default:
		return FlushTiming{}, fmt.Errorf("unknown flush profile %q", profile)
	}
}

// Merge fills zero fields of t from base
func (t FlushTiming) Merge(base FlushTiming) FlushTiming {
	fill := func(v *time.Duration, b time.Duration) {
		if *v == 0 {
			*v = b
		}
	}
	fill(&t.LiftTube, base.LiftTube)
	fill(&t.AirBubble, base.AirBubble)
	fill(&t.FlushLine, base.FlushLine)
	fill(&t.FreshwaterToDevice, base.FreshwaterToDevice)
	fill(&t.FreshwaterFlush, base.FreshwaterFlush)
	fill(&t.FinalAir, base.FinalAir)
	fill(&t.Buffer, base.Buffer)
	if t.MaxWaterTempC == 0 {
		t.MaxWaterTempC = base.MaxWaterTempC
	}
	return t
}
