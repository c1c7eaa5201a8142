package scanner

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/dennisinteractive/godog-protocol/internal/logging"
)

// ReadInput reads the input CSV and filters out URLs already present in the
// output CSV, so an interrupted run can be resumed.
func ReadInput(inputFile, outputFile string) ([]InputRecord, []string, error) {
	logging.Infof("reading input file %s", inputFile)
	f, err := os.Open(inputFile)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("input file is empty")
	}

	header := rows[0]
	urlIdx := columnIndex(header, "url")
	if urlIdx < 0 {
		return nil, nil, fmt.Errorf("url column not found")
	}

	processed := make(map[string]struct{})
	if of, err := os.Open(outputFile); err == nil {
		logging.Infof("checking existing results in %s", outputFile)
		defer of.Close()
		or := csv.NewReader(of)
		outRows, err := or.ReadAll()
		if err == nil && len(outRows) > 0 {
			idx := columnIndex(outRows[0], "url")
			for i, row := range outRows {
				if i == 0 || idx < 0 || len(row) <= idx {
					continue
				}
				processed[row[idx]] = struct{}{}
			}
			logging.Infof("found %d processed records", len(processed))
		} else if err != nil {
			logging.Warnf("read output error: %v", err)
		}
	}

	var result []InputRecord
	for i, row := range rows {
		if i == 0 || len(row) <= urlIdx {
			continue
		}
		url := strings.TrimSpace(row[urlIdx])
		if url == "" {
			continue
		}
		if _, ok := processed[url]; ok {
			continue
		}
		raw := make([]string, len(row))
		copy(raw, row)
		result = append(result, InputRecord{URL: url, Raw: raw})
	}
	logging.Infof("parsed %d new records", len(result))
	return result, header, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
