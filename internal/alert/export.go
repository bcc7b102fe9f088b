package alert

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fibwatch/internal/model"
)

// ExportCSV writes events into alerts_YYYYMMDD.csv under dir, oldest
// first so the file reads chronologically. Existing rows are replaced;
// the daily export schedule passes the full retained log.
func ExportCSV(dir string, day time.Time, events []model.AlertEvent) error {
	filename := filepath.Join(dir, fmt.Sprintf("alerts_%s.csv", day.Format("20060102")))
	f, err := os.OpenFile(filename, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		delivered := ""
		if e.Delivered != nil {
			delivered = fmt.Sprintf("%t", *e.Delivered)
		}
		row := []string{
			e.TS.Format(time.RFC3339),
			e.Symbol,
			e.Timeframe,
			fmt.Sprintf("%.3f", e.Ratio),
			fmt.Sprintf("%.6f", e.Price),
			fmt.Sprintf("%.1f", e.RSIValue),
			delivered,
			e.Message,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
