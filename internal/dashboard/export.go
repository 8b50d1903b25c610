package dashboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
)

// csvColumns puts the columns operators scan first at the front.
var csvColumns = []string{
	"Track Id", "Testcode", "Process",
	"Family", "Test Val", "LL", "UL", "2nd P/F", "3rd P/F", "Shift", "Ingested At",
}

// ExportFilename names a CSV download of collection taken at now.
func ExportFilename(collection string, now time.Time) string {
	return fmt.Sprintf("%s_errors_%s.csv", collection, now.Format("20060102_150405"))
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []domain.ErrorRecord) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(csvColumns))
	for i, r := range records {
		row[0] = r.TrackID
		row[1] = r.TestCode
		row[2] = r.Process
		row[3] = r.Family
		row[4] = formatFloat(r.TestValue)
		row[5] = formatFloat(r.LowerLimit)
		row[6] = formatFloat(r.UpperLimit)
		row[7] = r.SecondPassFail
		row[8] = r.ThirdPassFail
		row[9] = r.Shift.String()
		row[10] = r.IngestedAt.UTC().Format(time.RFC3339)
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
