package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"prizedraw/internal/models"
)

// TimeLayout is how win times are written to the history export.
const TimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{"序号", "奖项", "工号", "姓名", "中奖时间"}

// WriteWinnersCSV writes records in the given order, numbered from 1.
// The output starts with a UTF-8 BOM so Excel picks the right encoding.
func WriteWinnersCSV(w io.Writer, records []models.WinnerRecord) error {
	if _, err := io.WriteString(w, "\xef\xbb\xbf"); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		row := []string{
			strconv.Itoa(i + 1),
			r.PrizeName,
			r.EmployeeID,
			r.PersonName,
			r.WonAt.Format(TimeLayout),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
