package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"stockbars/internal/model"
)

// Store persists one artifact per work item. Existence of a non-empty
// artifact is the collector's idempotent-skip signal, so Exists must only
// report true for artifacts with content.
type Store interface {
	Exists(ctx context.Context, code string) (bool, error)
	Save(ctx context.Context, code string, bars model.Bars) error
}

// Config contains S3 backend configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
}

// ArtifactName returns the per-item artifact file name.
func ArtifactName(code string) string {
	return code + "_1min_2y.csv"
}

var csvHeader = []string{"date", "time", "open", "high", "low", "close", "volume"}

// EncodeCSV renders bars as the artifact CSV: fixed header then one row per
// bar in the given order.
func EncodeCSV(bars model.Bars) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, b := range bars {
		row := []string{
			strconv.Itoa(b.Date),
			strconv.Itoa(b.Time),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode artifact csv: %w", err)
	}
	return buf.Bytes(), nil
}
