package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Column aliases accepted in CSV headers, all matched case-insensitively.
var (
	ndfaAliases    = []string{"ndfa", "ndfa_pct"}
	partialAliases = []string{"partial_n_balance", "partial", "pnb"}
	totalAliases   = []string{"total_n_balance", "total", "tnb"}
)

// LoadCSV reads a dataset from a CSV file. The file must carry a header row
// naming the Ndfa, partial balance and total balance columns. Rows with
// unparsable numeric fields are skipped with a debug log rather than
// aborting the load.
func LoadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	table, err := parseCSV(file)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", path).
		Int("rows", table.Len()).
		Msg("CSV data loaded")
	return table, nil
}

// Fetch downloads a CSV dataset over HTTP.
func Fetch(ctx context.Context, url string, timeout time.Duration) (*Table, error) {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}

	resp, err := r.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dataset: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("dataset fetch returned status %d", resp.StatusCode())
	}

	table, err := parseCSV(strings.NewReader(resp.String()))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("url", url).
		Int("rows", table.Len()).
		Msg("Dataset fetched")
	return table, nil
}

func parseCSV(src io.Reader) (*Table, error) {
	reader := csv.NewReader(src)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	ndfaIdx, err := findColumn(header, ndfaAliases)
	if err != nil {
		return nil, err
	}
	partialIdx, err := findColumn(header, partialAliases)
	if err != nil {
		return nil, err
	}
	totalIdx, err := findColumn(header, totalAliases)
	if err != nil {
		return nil, err
	}

	table := &Table{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Debug().Int("line", line).Err(err).Msg("Skipping malformed CSV record")
			continue
		}

		ndfa, err1 := strconv.ParseFloat(record[ndfaIdx], 64)
		partial, err2 := strconv.ParseFloat(record[partialIdx], 64)
		total, err3 := strconv.ParseFloat(record[totalIdx], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			log.Debug().Int("line", line).Msg("Skipping row with non-numeric fields")
			continue
		}

		table.Rows = append(table.Rows, Row{Ndfa: ndfa, Partial: partial, Total: total})
	}

	if table.Len() == 0 {
		return nil, fmt.Errorf("no usable rows in dataset")
	}

	warnIfFractionScale(table)
	return table, nil
}

func findColumn(header []string, aliases []string) (int, error) {
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		for _, a := range aliases {
			if name == a {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("missing required column (one of %s)", strings.Join(aliases, ", "))
}

// The break-even model works on Ndfa percentages in [0,100]. A dataset where
// every predictor value is at most 1 was almost certainly recorded as a
// fraction; warn instead of rescaling silently.
func warnIfFractionScale(t *Table) {
	for _, r := range t.Rows {
		if r.Ndfa > 1 {
			return
		}
	}
	log.Warn().Msg("All Ndfa values are <= 1; expected percentages in [0,100]")
}
