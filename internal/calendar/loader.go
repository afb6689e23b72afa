package calendar

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
)

// ParseCSV reads an exchange calendar export.
// Required columns: cal_date; optional is_open (rows with is_open=0 are skipped).
// A file without a header is read as one date per line.
func ParseCSV(r io.Reader) ([]time.Time, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calendar header: %w", err)
	}

	dateCol, openCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cal_date", "trade_date", "date":
			dateCol = i
		case "is_open":
			openCol = i
		}
	}

	var days []time.Time
	if dateCol < 0 {
		// 헤더 없음: 첫 줄도 날짜
		d, err := contracts.ParseDate(strings.TrimSpace(header[0]))
		if err != nil {
			return nil, fmt.Errorf("calendar: missing cal_date column: %w", err)
		}
		days = append(days, d)
		dateCol = 0
	}

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calendar line %d: %w", line, err)
		}
		if dateCol >= len(rec) {
			return nil, fmt.Errorf("calendar line %d: missing date column", line)
		}
		if openCol >= 0 && openCol < len(rec) && strings.TrimSpace(rec[openCol]) == "0" {
			continue
		}

		d, err := contracts.ParseDate(strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("calendar line %d: %w", line, err)
		}
		days = append(days, d)
	}
	return days, nil
}
