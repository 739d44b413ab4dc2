package recommend

import (
	"github.com/s07362022/leadlag/internal/models"
)

// Intersect keeps the instruments two independent runs agree on. An
// instrument decided in both runs joins a regime's list when both runs prefer
// that regime, or joins both lists when either run found the two regimes
// within the tie epsilon. Order follows run a.
func Intersect(a, b models.BacktestRun, p Policy) models.RecommendationPair {
	other := make(map[string]Decision)
	for _, d := range DecideRun(b, p) {
		other[d.Symbol] = d
	}

	var agreed []Decision
	for _, da := range DecideRun(a, p) {
		db, ok := other[da.Symbol]
		if !ok {
			continue
		}

		d := da
		if da.Tie || db.Tie {
			d.Tie = true
		} else if da.Preferred != db.Preferred {
			continue
		}
		agreed = append(agreed, d)
	}

	return Collect(IntersectionName(a.Name, b.Name), agreed)
}

// IntersectionName labels the intersection of two runs.
func IntersectionName(a, b string) string {
	return a + "&" + b
}
