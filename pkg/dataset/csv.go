package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads a creditcard-style file. Columns are resolved by header
// name, so both the Kaggle layout (Time,V1..V28,Amount,Class) and the
// generated layout (Time,Amount,V1..V28,Class) load the same way. The
// Time column is optional and ignored.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %s", ErrMalformedFile, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.Trim(name, `"`))] = i
	}

	required := []string{"Amount", "Class"}
	for v := 1; v <= 28; v++ {
		required = append(required, fmt.Sprintf("V%d", v))
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedFile, name)
		}
	}
	timeCol, hasTime := cols["Time"]

	var rows []Row
	line := 1
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		line++

		var row Row
		if hasTime {
			if row.Time, err = field(record, timeCol); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s", ErrMalformedFile, line, err)
			}
		}
		if row.Amount, err = field(record, cols["Amount"]); err != nil {
			return nil, fmt.Errorf("%w: line %d: %s", ErrMalformedFile, line, err)
		}
		for v := 1; v <= 28; v++ {
			if row.V[v-1], err = field(record, cols[fmt.Sprintf("V%d", v)]); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s", ErrMalformedFile, line, err)
			}
		}

		label, err := field(record, cols["Class"])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s", ErrMalformedFile, line, err)
		}
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("%w: line %d: class must be 0 or 1, got %g", ErrMalformedFile, line, label)
		}
		row.Class = int(label)

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrMalformedFile)
	}

	return &Dataset{Rows: rows}, nil
}

func field(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return 0, fmt.Errorf("short record")
	}

	return strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
}
