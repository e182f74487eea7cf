package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/ghgcast/pkg/api"
	"github.com/HatiCode/ghgcast/pkg/explain"
	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/forecast"
)

const rule = 60

func writePredictSummary(w io.Writer, req features.Request, resp *api.PredictResponse) {
	startYear, startMonth := features.StartMonth(req.Year, req.Month)

	fmt.Fprintln(w, strings.Repeat("=", rule))
	fmt.Fprintf(w, "FORECAST SUMMARY: %s SECTOR\n", strings.ToUpper(resp.Meta.Sector))
	fmt.Fprintln(w, strings.Repeat("=", rule))
	fmt.Fprintf(w, "Region: %s\n", resp.Meta.Country)
	fmt.Fprintf(w, "Forecast start: %s %d\n", time.Month(startMonth), startYear)

	comp := resp.Data.GasComposition
	section(w, "GAS COMPOSITION")
	if comp.TotalCombined > 0 {
		fmt.Fprintf(w, "%-10s | %25s | %13s\n", "Gas", "Total Emissions (Tonnes)", "Composition %")
		fmt.Fprintln(w, strings.Repeat("-", rule))
		for _, gas := range forecast.Gases {
			fmt.Fprintf(w, "%-10s | %25s | %12.2f%%\n", strings.ToUpper(gas), commas(comp.AbsoluteTotals[gas]), comp.Ratios[gas])
		}
		fmt.Fprintln(w, strings.Repeat("-", rule))
		fmt.Fprintf(w, "%-10s | %25s | %12.2f%%\n", "TOTAL", commas(comp.TotalCombined), 100.0)
	} else {
		fmt.Fprintln(w, "No emissions detected for any gas type.")
	}

	if resp.Data.TotalEmissions <= 0 {
		fmt.Fprintf(w, "\nNo data found for the requested gas: %s\n", resp.Meta.RequestedGas)
		return
	}

	section(w, "MONTHLY FORECAST: "+strings.ToUpper(resp.Meta.RequestedGas))
	for i, v := range resp.Data.MonthlyTrends {
		y, m := features.MonthAt(startYear, startMonth, i)
		fmt.Fprintf(w, "  %-15s %15s\n", fmt.Sprintf("%s %d", time.Month(m), y), commas(v))
	}
	fmt.Fprintf(w, "  %-15s %15s\n", "Total", commas(resp.Data.TotalEmissions))

	section(w, "SUBSECTORS")
	for _, s := range resp.Data.SubsectorBreakdown {
		fmt.Fprintf(w, "  %-30s %15s\n", strings.ToUpper(s.Name), commas(s.Total))
	}
}

func writeExplainSummary(w io.Writer, resp *api.ExplainResponse) {
	fmt.Fprintln(w, strings.Repeat("=", rule))
	fmt.Fprintf(w, "FEATURE IMPORTANCE: %s\n", strings.ToUpper(resp.Data.TargetSubsector))
	fmt.Fprintln(w, strings.Repeat("=", rule))

	names := make([]string, 0, len(resp.Data.ImportanceScores))
	for name := range resp.Data.ImportanceScores {
		names = append(names, name)
	}
	order := make(map[string]int, len(explain.Groups))
	for i, g := range explain.Groups {
		order[g] = i
	}
	sort.SliceStable(names, func(i, j int) bool {
		si, sj := resp.Data.ImportanceScores[names[i]], resp.Data.ImportanceScores[names[j]]
		if si != sj {
			return si > sj
		}
		return order[names[i]] < order[names[j]]
	})

	for _, name := range names {
		score := resp.Data.ImportanceScores[name]
		bar := strings.Repeat("#", int(math.Round(score/5)))
		fmt.Fprintf(w, "%-20s %7.2f%%  %s\n", name, score, bar)
	}
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", rule))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", rule))
}

// commas formats v with two decimals and thousands separators.
func commas(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	if v < 0 && s != "0.00" {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
