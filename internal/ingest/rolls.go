package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/internal/splice"
)

// ReadRollFile reads a roll-history file (.csv or .csv.zst)
func ReadRollFile(path string) (map[string][]contracts.RollRecord, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	out, err := ReadRolls(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ReadRolls parses the wide roll-history table: one row per date, one column
// per continuous symbol, each cell the tracked contract ("DCE.c2105").
// Contracts are normalized to daily-bar instrument codes; empty cells are skipped.
func ReadRolls(r io.Reader) (map[string][]contracts.RollRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return map[string][]contracts.RollRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateCol := -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "datetime", "trade_date", "":
			if dateCol < 0 {
				dateCol = i
			}
		}
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("missing date column")
	}

	out := make(map[string][]contracts.RollRecord)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if dateCol >= len(rec) {
			return nil, fmt.Errorf("line %d: missing date", line)
		}

		raw := strings.TrimSpace(rec[dateCol])
		// "2021-04-12 00:00:00" 형식 허용
		if i := strings.IndexByte(raw, ' '); i > 0 {
			raw = raw[:i]
		}
		date, err := contracts.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		for i, cell := range rec {
			if i == dateCol || i >= len(header) {
				continue
			}
			symbol := strings.TrimSpace(header[i])
			cell = strings.TrimSpace(cell)
			if symbol == "" || cell == "" {
				continue
			}
			contract, err := splice.NormalizeContract(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, symbol, err)
			}
			out[symbol] = append(out[symbol], contracts.RollRecord{Symbol: symbol, Date: date, Contract: contract})
		}
	}

	for sym := range out {
		recs := out[sym]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
	}
	return out, nil
}
