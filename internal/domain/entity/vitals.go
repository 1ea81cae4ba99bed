package entity

import (
	"strconv"
	"strings"
)

// Thresholds used by ClassifyVital. A reading strictly above a warning
// threshold (or below, for oxygen) is WARNING; past the critical threshold
// it is CRITICAL.
const (
	TempWarning      = 37.5
	TempCritical     = 39.5
	BPMWarning       = 100
	BPMCritical      = 130
	OxygenWarning    = 95
	OxygenCritical   = 90
	SystolicWarning  = 140
	SystolicCritical = 180
)

// ClassifyVital computes the status of a reading at creation time. Values
// that do not parse are treated as NORMAL.
func ClassifyVital(kind VitalKind, value string) VitalStatus {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	switch kind {
	case VitalTemp:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return VitalNormal
		}
		switch {
		case v >= TempCritical:
			return VitalCritical
		case v > TempWarning:
			return VitalWarning
		}
	case VitalBPM:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return VitalNormal
		}
		switch {
		case v > BPMCritical:
			return VitalCritical
		case v > BPMWarning:
			return VitalWarning
		}
	case VitalOxygen:
		v, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return VitalNormal
		}
		switch {
		case v < OxygenCritical:
			return VitalCritical
		case v < OxygenWarning:
			return VitalWarning
		}
	case VitalPressure:
		systolic, _, _ := strings.Cut(value, "/")
		v, err := strconv.ParseFloat(strings.TrimSpace(systolic), 64)
		if err != nil {
			return VitalNormal
		}
		switch {
		case v > SystolicCritical:
			return VitalCritical
		case v > SystolicWarning:
			return VitalWarning
		}
	}
	return VitalNormal
}
