package clips

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LedgerFilename is the clip ledger kept in the save directory.
const LedgerFilename = "clips_metadata.csv"

const (
	colSerial      = "S.No"
	colName        = "Clip Name"
	colActionClass = "Action Class ID"
	colStart       = "Start Time Stamp"
	colEnd         = "End Time Stamp"
	colDescription = "Description"
	colTeam        = "Team"
	colEquipment   = "Equipment"
)

var ledgerHeader = []string{
	colSerial, colName, colActionClass, colStart, colEnd, colDescription, colTeam, colEquipment,
}

// required columns; S.No is regenerated on every write
var requiredColumns = ledgerHeader[1:]

// WriteLedger writes clips as CSV with a 1-based serial number.
func WriteLedger(w io.Writer, clips []Clip) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerHeader); err != nil {
		return err
	}
	for i, c := range clips {
		row := []string{
			strconv.Itoa(i + 1),
			c.Name,
			c.ActionClass,
			c.StartTime,
			c.EndTime,
			c.Description,
			c.Team,
			c.Equipment,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLedger parses a ledger. Columns are matched by header name so
// reordered files load; every column except S.No must be present.
func ReadLedger(r io.Reader, path string) ([]Clip, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Path: path, Line: 1, Err: errors.New("empty ledger")}
		}
		return nil, &ParseError{Path: path, Line: 1, Err: err}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, &ParseError{Path: path, Line: 1, Err: fmt.Errorf("%s %q", ReasonMissingColumn, col)}
		}
	}

	var clips []Clip
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &ParseError{Path: path, Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		get := func(col string) (string, error) {
			i := index[col]
			if i >= len(rec) {
				return "", fmt.Errorf("row has %d fields, %q is column %d", len(rec), col, i+1)
			}
			return rec[i], nil
		}

		var c Clip
		fields := []struct {
			col string
			dst *string
		}{
			{colName, &c.Name},
			{colActionClass, &c.ActionClass},
			{colStart, &c.StartTime},
			{colEnd, &c.EndTime},
			{colDescription, &c.Description},
			{colTeam, &c.Team},
			{colEquipment, &c.Equipment},
		}
		for _, f := range fields {
			v, err := get(f.col)
			if err != nil {
				return nil, &ParseError{Path: path, Line: line, Err: err}
			}
			*f.dst = v
		}
		if c.Name == "" {
			return nil, &ParseError{Path: path, Line: line, Err: errors.New("empty clip name")}
		}
		clips = append(clips, c)
	}
	return clips, nil
}
