// Package recipients reads the recipient list from CSV.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lattiq/mailmerge/internal/core"
)

// Read parses CSV with a header row into records, in input order.
//
// A leading UTF-8 or UTF-16 byte order mark is honored and stripped. Rows shorter
// than the header leave the trailing fields absent; extra cells are ignored.
// Blank lines are skipped. Empty input yields no records and no error.
func Read(r io.Reader) ([]core.Record, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []core.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(records)+2, err)
		}

		rec := make(core.Record, len(header))
		for i, name := range header {
			if i >= len(row) {
				break
			}
			if name == "" {
				continue
			}
			rec[name] = row[i]
		}
		records = append(records, rec)
	}

	return records, nil
}

// ReadFile reads records from the CSV file at path.
func ReadFile(path string) ([]core.Record, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients: %w", err)
	}
	defer f.Close()

	return Read(f)
}
