package scanner

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/dennisinteractive/godog-protocol/internal/logging"
)

// ResultColumns are appended to the input columns in the output CSV.
var ResultColumns = []string{"start_time", "response_code", "leaked_url", "leak_page", "pass_test", "error"}

// WriteResults appends results to the output CSV file.
func WriteResults(outputFile string, header []string, ch <-chan Result) {
	logging.Infof("writing results to %s", outputFile)
	_, err := os.Stat(outputFile)
	newFile := os.IsNotExist(err)

	f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Errorf("open output error: %v", err)
		for range ch {
		}
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		logging.Debugf("creating new output file with header")
		hdr := append(append([]string{}, header...), ResultColumns...)
		if err := w.Write(hdr); err != nil {
			logging.Warnf("write header error: %v", err)
		}
		w.Flush()
	}

	count := 0
	for r := range ch {
		row := append(append([]string{}, r.Raw...),
			r.StartTime,
			fmt.Sprintf("%d", r.ResponseCode),
			r.LeakedURL,
			r.LeakPage,
			fmt.Sprintf("%t", r.PassTest),
			r.Error,
		)
		if err := w.Write(row); err != nil {
			logging.Warnf("write row error for %s: %v", r.URL, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			logging.Warnf("flush error: %v", err)
		} else {
			logging.Debugf("wrote result for %s", r.URL)
		}
		count++
	}
	logging.Infof("finished writing %d results", count)
}
