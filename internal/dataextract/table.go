package dataextract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"demosim/internal/params"
)

// WriteSummaryCSV writes one row per combination: the swept values followed
// by n, mean, std, min and max.
func WriteSummaryCSV(w io.Writer, names []string, rows []CellSummary) error {
	writer := csv.NewWriter(w)
	header := append(append([]string(nil), names...), "n", "mean", "std", "min", "max")
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, row := range rows {
		record := make([]string, 0, len(header))
		for _, v := range row.Values {
			record = append(record, params.FormatValue(v))
		}
		record = append(record,
			strconv.Itoa(row.N),
			formatStat(row.Mean),
			formatStat(row.Std),
			formatStat(row.Min),
			formatStat(row.Max),
		)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write summary row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
