package core

import (
	"github.com/orrn/dsrx/internal/config"
)

// Extension field values.
const (
	ICMMethodNone   = 1
	ICMMethodSystem = 2

	BorderOff = 0
	BorderOn  = 1

	OvercoatGlossy = 0
	OvercoatMatte  = 1

	PrintRetryOff = 0
	PrintRetryOn  = 1

	Cut2InchOff = 0
	Cut2InchOn  = 1
)

// PrintSettings is the full set of values written into the driver's DEVMODE
// for one job.
type PrintSettings struct {
	PaperSize    int16
	Orientation  int16
	PrintQuality int16
	YResolution  int16
	ICMMethod    int32

	Sharpness       int32
	ColorAdjustment int32
	Border          int32
	OvercoatFinish  int32
	PrintRetry      int32

	GammaR, GammaG, GammaB                int32
	BrightnessR, BrightnessG, BrightnessB int32
	ContrastR, ContrastG, ContrastB       int32
	ChromaR, ChromaG, ChromaB             int32

	Cut2Inch int32
}

// SettingsFromConfig builds the default template a job's settings are
// cloned from.
func SettingsFromConfig(c config.SettingsConfig) PrintSettings {
	return PrintSettings{
		PaperSize:       c.PaperSize,
		Orientation:     c.Orientation,
		PrintQuality:    c.PrintQuality,
		YResolution:     c.YResolution,
		ICMMethod:       c.ICMMethod,
		Sharpness:       c.Sharpness,
		ColorAdjustment: c.ColorAdjustment,
		Border:          c.Border,
		OvercoatFinish:  c.OvercoatFinish,
		PrintRetry:      c.PrintRetry,
		GammaR:          c.GammaR,
		GammaG:          c.GammaG,
		GammaB:          c.GammaB,
		BrightnessR:     c.BrightnessR,
		BrightnessG:     c.BrightnessG,
		BrightnessB:     c.BrightnessB,
		ContrastR:       c.ContrastR,
		ContrastG:       c.ContrastG,
		ContrastB:       c.ContrastB,
		ChromaR:         c.ChromaR,
		ChromaG:         c.ChromaG,
		ChromaB:         c.ChromaB,
	}
}

// ForJob returns a copy of s with the cut mode for the request applied.
func (s PrintSettings) ForJob(halfCut bool) PrintSettings {
	if halfCut {
		s.Cut2Inch = Cut2InchOn
	} else {
		s.Cut2Inch = Cut2InchOff
	}
	return s
}

// extensionValues maps s onto the named extension fields. The 2-inch cut
// field only exists on models that support it.
func (s PrintSettings) extensionValues(withCut2Inch bool) map[string]int32 {
	v := map[string]int32{
		config.FieldBorder:          s.Border,
		config.FieldColorAdjustment: s.ColorAdjustment,
		config.FieldSharpness:       s.Sharpness,
		config.FieldGammaR:          s.GammaR,
		config.FieldGammaG:          s.GammaG,
		config.FieldGammaB:          s.GammaB,
		config.FieldBrightnessR:     s.BrightnessR,
		config.FieldBrightnessG:     s.BrightnessG,
		config.FieldBrightnessB:     s.BrightnessB,
		config.FieldContrastR:       s.ContrastR,
		config.FieldContrastG:       s.ContrastG,
		config.FieldContrastB:       s.ContrastB,
		config.FieldChromaR:         s.ChromaR,
		config.FieldChromaG:         s.ChromaG,
		config.FieldChromaB:         s.ChromaB,
		config.FieldOvercoatFinish:  s.OvercoatFinish,
		config.FieldPrintRetry:      s.PrintRetry,
	}
	if withCut2Inch {
		v[config.FieldCut2Inch] = s.Cut2Inch
	}
	return v
}
