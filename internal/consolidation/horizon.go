package consolidation

import "github.com/engramhq/engram/internal/models"

// HorizonConfig is one entry of the retrieved HORIZON_CONFIGS table:
// the recurrence delta and optional age cutoff for a consolidation horizon.
type HorizonConfig struct {
	DeltaDays  int
	CutoffDays int // 0 means "no cutoff"
}

// HorizonConfigs mirrors consolidator.py's HORIZON_CONFIGS exactly.
var HorizonConfigs = map[string]HorizonConfig{
	"daily":     {DeltaDays: 1, CutoffDays: 2},
	"weekly":    {DeltaDays: 7, CutoffDays: 0},
	"monthly":   {DeltaDays: 30, CutoffDays: 0},
	"quarterly": {DeltaDays: 90, CutoffDays: 90},
	"yearly":    {DeltaDays: 365, CutoffDays: 365},
}

// EnabledPhases mirrors DreamInspiredConsolidator.ENABLED_PHASES: which
// horizons each phase is allowed to run under.
var EnabledPhases = map[string][]string{
	"clustering":   {"weekly", "monthly", "quarterly"},
	"associations": {"weekly", "monthly"},
	"compression":  {"weekly", "monthly", "quarterly"},
	"forgetting":   {"monthly", "quarterly", "yearly"},
}

// checkHorizonRequirements reports whether phase may run for the given
// horizon, per EnabledPhases.
func checkHorizonRequirements(horizon, phase string) bool {
	for _, h := range EnabledPhases[phase] {
		if h == horizon {
			return true
		}
	}
	return false
}

// filterMemoriesByAge keeps only memories created before cutoff (epoch
// seconds).
func filterMemoriesByAge(memories []*models.Memory, cutoff float64) []*models.Memory {
	out := make([]*models.Memory, 0, len(memories))
	for _, m := range memories {
		if m.CreatedAt <= cutoff {
			out = append(out, m)
		}
	}
	return out
}
