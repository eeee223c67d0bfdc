package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/field-survey-etl/internal/table"
)

func (f *Fetcher) readCSV(ctx context.Context, c CSV) (*table.Table, error) {
	body, err := f.open(ctx, c.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	t, err := ParseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.URL, err)
	}
	return t, nil
}

func (f *Fetcher) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		file, err := os.Open(strings.TrimPrefix(location, "file://"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return file, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrConnection, err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrConnection, location, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: bad status %q fetching %s: %s", ErrConnection, resp.Status, location, snippet)
	}
	return resp.Body, nil
}

// ParseCSV reads a delimited file whose first row names the columns. Empty
// header cells become "Unnamed: <index>". Each column is typed from its
// cells: int64 when every non-empty cell is an integer, else float64 when
// every one is a number, else string. Empty and NaN cells are null.
func ParseCSV(r io.Reader) (*table.Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no header row", ErrFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		if seen[h] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrFormat, h)
		}
		seen[h] = true
		names[i] = h
	}

	raw := make([][]string, len(names))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		for i, cell := range record {
			raw[i] = append(raw[i], cell)
		}
	}

	cols := make([]table.Column, len(names))
	for i, name := range names {
		cols[i] = table.Column{Name: name, Values: inferColumn(raw[i])}
	}
	t, err := table.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return t, nil
}

// missingTokens are the cell texts read as null, besides the empty cell.
var missingTokens = []string{"nan", "na", "n/a", "#n/a", "null", "none", "<na>"}

// isMissing reports whether a trimmed cell denotes a null value.
func isMissing(cell string) bool {
	return cell == "" || slices.Contains(missingTokens, strings.ToLower(cell))
}

func inferColumn(cells []string) []any {
	allInt, allFloat := true, true
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if isMissing(c) {
			continue
		}
		if _, err := strconv.ParseInt(c, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			allFloat = false
			break
		}
	}

	out := make([]any, len(cells))
	for i, c := range cells {
		trimmed := strings.TrimSpace(c)
		switch {
		case isMissing(trimmed):
			out[i] = nil
		case allInt:
			out[i], _ = strconv.ParseInt(trimmed, 10, 64)
		case allFloat:
			out[i], _ = strconv.ParseFloat(trimmed, 64)
		default:
			out[i] = c
		}
	}
	return out
}
