package recommend

import "github.com/s07362022/leadlag/internal/models"

// Merge unions recommendation pairs in order, keeping the first occurrence of
// each instrument and the mean return it was recommended with.
func Merge(source string, pairs ...models.RecommendationPair) models.RecommendationPair {
	return models.RecommendationPair{
		Crash: union(source, models.RegimeCrash, pairs),
		Surge: union(source, models.RegimeSurge, pairs),
	}
}

func union(source string, r models.Regime, pairs []models.RecommendationPair) models.RecommendationSet {
	set := models.RecommendationSet{Regime: r, Source: source}
	for _, pair := range pairs {
		for _, pick := range pair.ForRegime(r).Picks {
			if set.Contains(pick.Instrument) {
				continue
			}
			set.Picks = append(set.Picks, pick)
		}
	}
	return set
}

// BuildComposite assembles the short and long horizon blocks from the named
// runs' recommendations. Unknown names are ignored.
func BuildComposite(recs []models.RunRecommendation, short, long []string) models.Composite {
	byName := make(map[string]models.RecommendationPair, len(recs))
	for _, r := range recs {
		byName[r.Run] = r.RecommendationPair
	}

	pick := func(names []string) []models.RecommendationPair {
		var out []models.RecommendationPair
		for _, n := range names {
			if p, ok := byName[n]; ok {
				out = append(out, p)
			}
		}
		return out
	}

	return models.Composite{
		Short: Merge("short", pick(short)...),
		Long:  Merge("long", pick(long)...),
	}
}
