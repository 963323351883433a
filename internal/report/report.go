// Package report renders simulation results as matrices, CSV files and text
// tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/response"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/utils"
)

// ReferenceLine is the PTA/CFR percentage conventionally treated as adequate
const ReferenceLine = 95.0

// Matrix is PTA laid out with one row per MIC (ascending) and one column per
// regimen. Cells for pairs absent from the result are 0.
type Matrix struct {
	MICs     []float64        `json:"mics"`
	Regimens []models.Regimen `json:"regimens"`
	Values   [][]float64      `json:"values"`
}

// PTAMatrix builds a Matrix. A nil regimens slice uses the regimens found in result.
func PTAMatrix(result *models.AttainmentResult, regimens []models.Regimen) *Matrix {
	if regimens == nil {
		regimens = response.Regimens(result)
	}
	m := &Matrix{
		MICs:     result.SortedThresholds(),
		Regimens: regimens,
	}
	m.Values = make([][]float64, len(m.MICs))
	for i, mic := range m.MICs {
		row := make([]float64, len(regimens))
		for j, r := range regimens {
			row[j], _ = result.Probability(mic, r)
		}
		m.Values[i] = row
	}
	return m
}

// WritePTACSV writes the PTA matrix with a "MIC (mg/L)" column followed by one
// column per regimen label.
func WritePTACSV(w io.Writer, result *models.AttainmentResult, regimens []models.Regimen) error {
	m := PTAMatrix(result, regimens)
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(m.Regimens)+1)
	header = append(header, "MIC (mg/L)")
	for _, r := range m.Regimens {
		header = append(header, r.Label())
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write pta header: %w", err)
	}

	for i, mic := range m.MICs {
		record := make([]string, 0, len(header))
		record = append(record, formatFloat(mic))
		for _, v := range m.Values[i] {
			record = append(record, formatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write pta row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCFRCSV writes one row per regimen: dose, interval, CFR
func WriteCFRCSV(w io.Writer, scores models.ResponseScores) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Dose (mg)", "Interval (h)", "CFR (%)"}); err != nil {
		return fmt.Errorf("failed to write cfr header: %w", err)
	}
	for _, s := range scores {
		record := []string{formatFloat(s.Regimen.Dose), formatFloat(s.Regimen.Interval), formatFloat(s.Score)}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write cfr row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable prints PTA and, when scores are given, CFR as aligned text with
// values rounded to two decimals.
func WriteTable(w io.Writer, result *models.AttainmentResult, scores models.ResponseScores) error {
	m := PTAMatrix(result, nil)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "PTA (%)")
	fmt.Fprint(tw, "MIC (mg/L)")
	for _, r := range m.Regimens {
		fmt.Fprintf(tw, "\t%s/%sh", formatFloat(r.Dose), formatFloat(r.Interval))
	}
	fmt.Fprintln(tw)
	for i, mic := range m.MICs {
		fmt.Fprint(tw, formatFloat(mic))
		for _, v := range m.Values[i] {
			fmt.Fprintf(tw, "\t%.2f", utils.Round(v, 2))
		}
		fmt.Fprintln(tw)
	}

	if len(scores) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Regimen\tCFR (%)\t>= 95%")
		for _, s := range scores {
			mark := "no"
			if s.Score >= ReferenceLine {
				mark = "yes"
			}
			fmt.Fprintf(tw, "%s\t%.2f\t%s\n", s.Regimen.Label(), utils.Round(s.Score, 2), mark)
		}
	}

	return tw.Flush()
}

// Breakpoint returns, per regimen, the highest MIC at which PTA still reaches
// the reference line. Regimens that never reach it are absent.
func Breakpoint(result *models.AttainmentResult) map[models.Regimen]float64 {
	out := make(map[models.Regimen]float64)
	for _, mic := range result.SortedThresholds() {
		for _, e := range result.ByThreshold[mic] {
			if e.Probability >= ReferenceLine {
				out[e.Regimen] = mic
			}
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
