package leadfile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// StreamCSV reads CSV records and sends them to a channel. Both channels are
// closed when the input is exhausted, ctx is done, or a read fails.
func StreamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV parses a CSV batch whose first row names the columns.
func ReadCSV(ctx context.Context, r io.Reader) ([]json.RawMessage, error) {
	rowCh, errCh := StreamCSV(ctx, r)

	var (
		header []string
		rows   [][]string
	)
	for row := range rowCh {
		if header == nil {
			header = row
			continue
		}
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if header == nil {
		return nil, eris.New("csv: missing header row")
	}
	return rowsToEntries(header, rows)
}
