// Package report renders advisory reports as plain text.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/s07362022/leadlag/internal/models"
)

const sep = "------------------------------------------------------------"

// Render writes the full report to w.
func Render(w io.Writer, r *models.Report) error {
	var b bytes.Buffer

	fmt.Fprintf(&b, "Lead/lag report %s\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "id %s\n", r.ID)

	writeSignal(&b, r)

	for _, run := range r.Runs {
		rec, _ := r.Recommendation(run.Name)
		writeRun(&b, run, rec)
	}

	if len(r.Intersections) > 0 {
		section(&b, "Intersections")
		names := make([]string, 0, len(r.Intersections))
		for name := range r.Intersections {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			writePair(&b, name, r.Intersections[name])
		}
	}

	section(&b, "Composite")
	writePair(&b, "short", r.Composite.Short)
	writePair(&b, "long", r.Composite.Long)

	section(&b, "Flat day")
	writeFlat(&b, r.Flat)

	if len(r.Failures) > 0 {
		section(&b, "Skipped")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}

	_, err := w.Write(b.Bytes())
	return err
}

// String renders the report to a string.
func String(r *models.Report) string {
	var b strings.Builder
	_ = Render(&b, r)
	return b.String()
}

func section(b *bytes.Buffer, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n%s\n", sep, title, sep)
}

func writeSignal(b *bytes.Buffer, r *models.Report) {
	section(b, "Signal")
	s := r.Signal
	if s == nil {
		b.WriteString("  leading signal unavailable\n")
		return
	}

	vol := "not ready"
	if s.VolatilityReady {
		vol = fmt.Sprintf("%.2f%%", s.VolatilityPct)
	}
	fmt.Fprintf(b, "  %s %s close %.2f change %+.2f%%\n", s.Symbol, s.Date.Format("2006-01-02"), s.Close, s.ChangePct)
	fmt.Fprintf(b, "  volatility %s, band %.2f%% / %+.2f%%\n", vol, s.Threshold.Crash, s.Threshold.Surge)
	fmt.Fprintf(b, "  regime: %s\n", strings.ToUpper(string(s.Regime)))

	if s.Regime == models.RegimeFlat {
		fmt.Fprintf(b, "  action: %s\n", flatLabel(r.Flat.Action))
		return
	}
	fmt.Fprintf(b, "  buy short: %s\n", picks(r.Composite.Short.ForRegime(s.Regime)))
	fmt.Fprintf(b, "  buy long:  %s\n", picks(r.Composite.Long.ForRegime(s.Regime)))
	names := make([]string, 0, len(r.Intersections))
	for name := range r.Intersections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  agreed %s: %s\n", name, picks(r.Intersections[name].ForRegime(s.Regime)))
	}
}

func writeRun(b *bytes.Buffer, run models.BacktestRun, rec models.RunRecommendation) {
	section(b, fmt.Sprintf("%s: %s, %d-day lookback, %d-day hold (%s to %s)",
		run.Name, run.Universe, run.LookbackDays, run.HorizonDays,
		run.Start.Format("2006-01-02"), run.End.Format("2006-01-02")))

	if len(rec.Ranked) > 0 {
		writeRanked(b, rec.Ranked)
	} else {
		writeStats(b, run.Instruments)
	}

	fmt.Fprintf(b, "  crash buy: %s\n", picks(rec.Crash))
	fmt.Fprintf(b, "  surge buy: %s\n", picks(rec.Surge))
}

// writeStats renders one row per instrument with every regime's sample
// count, win rate and mean return.
func writeStats(b *bytes.Buffer, insts []models.InstrumentStats) {
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "instrument\tcrash n\twin%\tret%\tsurge n\twin%\tret%\tflat n\twin%\tret%\tprefer\t")
	for _, s := range insts {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%+.2f\t%d\t%.1f\t%+.2f\t%d\t%.1f\t%+.2f\t%s\t\n",
			s.Label(),
			s.Crash.SampleCount, s.Crash.WinRatePct, s.Crash.MeanReturnPct,
			s.Surge.SampleCount, s.Surge.WinRatePct, s.Surge.MeanReturnPct,
			s.Flat.SampleCount, s.Flat.WinRatePct, s.Flat.MeanReturnPct,
			s.Preferred())
	}
	tw.Flush()
}

func writeRanked(b *bytes.Buffer, ranked []models.RankedInstrument) {
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tinstrument\tbest\twin%\tret%\tscore\t")
	for _, r := range ranked {
		name := r.Name
		if name == "" {
			name = r.Symbol
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%+.2f\t%.1f\t\n",
			r.Rank, name, r.Best, r.WinRatePct, r.MeanReturnPct, r.Score)
	}
	tw.Flush()
}

func writePair(b *bytes.Buffer, label string, p models.RecommendationPair) {
	fmt.Fprintf(b, "  %s crash buy: %s\n", label, picks(p.Crash))
	fmt.Fprintf(b, "  %s surge buy: %s\n", label, picks(p.Surge))
}

func writeFlat(b *bytes.Buffer, f models.FlatAdvice) {
	fmt.Fprintf(b, "  %s (%s)\n", flatLabel(f.Action), f.Reason)
}

func flatLabel(a models.FlatAction) string {
	switch a {
	case models.FlatBuyETF:
		return "buy ETF"
	case models.FlatNoBuy:
		return "do not buy"
	default:
		return "wait"
	}
}

func picks(s models.RecommendationSet) string {
	if len(s.Picks) == 0 {
		return "none"
	}
	parts := make([]string, len(s.Picks))
	for i, p := range s.Picks {
		parts[i] = fmt.Sprintf("%s %+.2f%%", p.Instrument, p.MeanReturnPct)
	}
	return strings.Join(parts, ", ")
}
