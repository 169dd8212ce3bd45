// Package feeder supplies per-invocation data records to actions. Each
// record is merged into the action settings so its fields can be used as
// {{placeholders}}.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Record is one row of named string fields.
type Record map[string]string

// Feeder hands out records in file order. Implementations are safe for
// concurrent use.
type Feeder interface {
	Next(ctx context.Context) (Record, error)
	Len() int
	Close() error
}

// ErrExhausted is returned once every record has been used and the feeder
// does not loop.
var ErrExhausted = errors.New("feeder exhausted: no more records available")

// Open loads path as CSV, JSON or YAML based on its extension. When loop is
// set the feeder starts over after the last record.
func Open(path string, loop bool) (Feeder, error) {
	var (
		records []Record
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".json":
		records, err = readJSON(path)
	case ".yaml", ".yml":
		records, err = readYAML(path)
	default:
		return nil, fmt.Errorf("unsupported data file %q (expected .csv, .json or .yaml)", path)
	}
	if err != nil {
		return nil, err
	}
	return &dataset{records: records, loop: loop}, nil
}

type dataset struct {
	mu      sync.Mutex
	records []Record
	index   int
	loop    bool
}

func (d *dataset) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.index >= len(d.records) {
		if !d.loop {
			return nil, ErrExhausted
		}
		d.index = 0
	}
	rec := d.records[d.index]
	d.index++
	return rec, nil
}

func (d *dataset) Len() int { return len(d.records) }

func (d *dataset) Close() error { return nil }

// Merge returns a copy of settings with the record fields added. Record
// fields win over existing settings.
func Merge(settings map[string]interface{}, rec Record) map[string]interface{} {
	out := make(map[string]interface{}, len(settings)+len(rec))
	for k, v := range settings {
		out[k] = v
	}
	for k, v := range rec {
		out[k] = v
	}
	return out
}
