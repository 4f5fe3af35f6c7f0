// Package export renders read-only views of the case store: CSV extracts
// and the printable incident report.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/disasterlens/civicguard/internal/model"
)

// csvHeader is the fixed export column order.
var csvHeader = []string{
	"Case ID",
	"Timestamp",
	"Source",
	"City",
	"Hazard Type",
	"Risk Level",
	"Severity (1-10)",
	"Confidence",
	"Status",
	"Address",
	"Latitude",
	"Longitude",
}

// WriteCSV writes case metadata in the fixed column order.
func WriteCSV(w io.Writer, cases []*model.IncidentCase) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, c := range cases {
		row := []string{
			c.ID,
			time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339),
			string(c.SourceEngine),
			c.City,
			c.Analysis.HazardType,
			string(c.Analysis.RiskLevel),
			strconv.Itoa(c.Analysis.ImpactSeverity),
			strconv.FormatFloat(c.Analysis.ConfidenceScore, 'f', -1, 64),
			string(c.Status),
			c.Location.Address,
			strconv.FormatFloat(c.Location.Latitude, 'f', -1, 64),
			strconv.FormatFloat(c.Location.Longitude, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for case %s: %w", c.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// CSVFilename returns the dated export filename.
func CSVFilename(now time.Time) string {
	return "DXCG_Export_" + now.UTC().Format("2006-01-02") + ".csv"
}
