package refdata

import (
	"math"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
)

// conservativeDefaultRate is used when no SpeedRule matches a
// machine/article pair (§7: reference-data error class, warning with
// conservative default).
const conservativeDefaultRate = 8.0
const conservativeDefaultEfficiency = 1.0

// SpeedService resolves the most-specific production rate for a
// machine/article pair.
type SpeedService struct {
	snapshotFn func() *Snapshot
}

// NewSpeedService builds a SpeedService reading from the given Service.
func NewSpeedService(svc *Service) *SpeedService {
	return &SpeedService{snapshotFn: svc.Current}
}

// Rate returns (boxes-per-hour, efficiency, usedDefault) for a
// machine/article pair at instant t. Most-specific match wins:
// machine+article > machine+* > *+article > *+*.
func (s *SpeedService) Rate(machine, article string, t time.Time) (rate, efficiency float64, usedDefault bool) {
	snap := s.snapshotFn()
	var best model.SpeedRule
	bestScore := -1

	for _, rule := range snap.Speeds {
		if !rule.Valid(t) {
			continue
		}
		if rule.Machine != "*" && rule.Machine != machine {
			continue
		}
		if rule.Article != "*" && rule.Article != article {
			continue
		}
		score := rule.specificity()
		if score > bestScore {
			best = rule
			bestScore = score
		}
	}

	if bestScore < 0 {
		return conservativeDefaultRate, conservativeDefaultEfficiency, true
	}
	return best.RateBoxesPerHour, best.EfficiencyPct, false
}

// RequiredHours computes required-hours = quantity / (speed x efficiency)
// per §4.4.
func (s *SpeedService) RequiredHours(machine, article string, quantity int, t time.Time) float64 {
	rate, eff, _ := s.Rate(machine, article, t)
	if eff <= 0 {
		eff = conservativeDefaultEfficiency
	}
	effectiveRate := rate * eff
	if effectiveRate <= 0 {
		effectiveRate = conservativeDefaultRate
	}
	return float64(quantity) / effectiveRate
}

// RequiredDuration is RequiredHours expressed as a time.Duration, rounded
// up to whole seconds so callers never under-allocate time.
func (s *SpeedService) RequiredDuration(machine, article string, quantity int, t time.Time) time.Duration {
	hours := s.RequiredHours(machine, article, quantity, t)
	seconds := math.Ceil(hours * 3600)
	return time.Duration(seconds) * time.Second
}
