package symbols

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// codeColumns are the header names recognized as the symbol column, in
// priority order. When none match, the first column is used.
var codeColumns = []string{"code", "symbol", "ticker"}

// CSVSource reads work items from one or more symbol meta CSV files (the
// output of the symbols subcommand). The combined result is normalized,
// deduplicated and sorted so repeated runs see an identical ordered list.
type CSVSource struct {
	paths  []string
	logger *zap.Logger
}

// NewCSVSource creates a source over the given meta files. Missing files
// are tolerated and contribute nothing; at least one readable file with at
// least one valid code is required.
func NewCSVSource(paths []string, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{paths: paths, logger: logger}
}

// List implements Source.
func (s *CSVSource) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	for _, path := range s.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		codes, err := s.readFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable symbol file",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		for _, code := range codes {
			seen[code] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no valid symbols found in %v", s.paths)
	}

	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *CSVSource) readFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := columnIndex(records[0])
	var codes []string
	for _, rec := range records[1:] {
		if col >= len(rec) {
			continue
		}
		if code := Normalize(rec[col]); code != "" {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func columnIndex(header []string) int {
	for _, want := range codeColumns {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	return 0
}
