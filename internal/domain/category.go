package domain

// SpeedCategory is the dashboard severity class of a restriction speed.
type SpeedCategory string

const (
	SpeedCritical SpeedCategory = "critical"
	SpeedLow      SpeedCategory = "low"
	SpeedMedium   SpeedCategory = "medium"
	SpeedHigh     SpeedCategory = "high"
	SpeedReduced  SpeedCategory = "reduced"
)

// SpeedCategoryOf classifies a speed in km/h.
func SpeedCategoryOf(speed float64) SpeedCategory {
	switch {
	case speed <= 30:
		return SpeedCritical
	case speed <= 60:
		return SpeedLow
	case speed <= 80:
		return SpeedMedium
	case speed <= 120:
		return SpeedHigh
	default:
		return SpeedReduced
	}
}
