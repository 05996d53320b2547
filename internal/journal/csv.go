package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var csvHeaders = []string{
	"Seq", "ID", "Time", "Side", "Ticker", "Price", "Amount", "Volume", "Reason", "Mode", "OrderID",
}

// WriteCSV writes recs with a header row. Times are rendered in loc.
func WriteCSV(w io.Writer, recs []TradeRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for _, r := range recs {
		row := []string{
			strconv.FormatInt(r.Seq, 10),
			r.ID,
			r.Time.In(loc).Format(time.RFC3339),
			string(r.Side),
			r.Ticker,
			r.Price.String(),
			r.Amount.String(),
			r.Volume.String(),
			r.Reason,
			r.Mode,
			r.OrderID,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r.Seq, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportCSV writes recs to path, creating parent directories.
func ExportCSV(path string, recs []TradeRecord, loc *time.Location) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	if err := WriteCSV(f, recs, loc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
