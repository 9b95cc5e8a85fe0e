package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperifyio/studysync/internal/item"
)

// mergeRecords flattens per-page results into one batch, keeping the first
// record seen for each source_uid.
func mergeRecords(pages []pageResult) []item.Record {
	var (
		seen item.Seen
		out  []item.Record
	)
	for _, p := range pages {
		for _, r := range p.Records {
			if seen.Add(r.SourceUID) {
				out = append(out, r)
			}
		}
	}
	return out
}

// writeRecordsJSON writes records as the indented bulk payload.
func writeRecordsJSON(w io.Writer, records []item.Record) error {
	if records == nil {
		records = []item.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// writeRecordsFile writes the payload to path, creating parent directories.
func writeRecordsFile(path string, records []item.Record) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeRecordsJSON(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
