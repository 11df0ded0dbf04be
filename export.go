package txlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
)

// Header is the fixed column order of the exported artifact.
var Header = []string{
	"time", "exchange", "type", "pair", "currency",
	"quantity", "price", "value_krw", "fx_rate", "fee", "external_id",
}

// EncodeCSV writes events as CSV rows to w. When withHeader is true the
// header row is written first. Field escaping (embedded separators,
// quotes, newlines) is handled by encoding/csv.
func EncodeCSV(w io.Writer, events []Event, withHeader bool) error {
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(Header); err != nil {
			return err
		}
	}
	for _, e := range events {
		if err := cw.Write(record(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(e Event) []string {
	return []string{
		e.DisplayTime(),
		string(e.Exchange),
		string(e.Type),
		e.Pair,
		e.Currency,
		nullable(e.Quantity),
		nullable(e.Price),
		e.ValueKRW.String(),
		e.Rate.String(),
		e.Fee.String(),
		e.ExternalID,
	}
}

func nullable(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// AppendCSV appends events to the artifact at path, creating it (with
// the header) when absent or empty. An existing artifact never gets a
// second header and its rows are left untouched.
func AppendCSV(path string, events []Event) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot open artifact %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return appendRows(f, events, info.Size() == 0)
}

// appendRows encodes the whole batch up front and hands it to w in a
// single write. A destination failing mid-batch would otherwise keep a
// partial flush that the next watch pass, whose seen set was never
// updated, duplicates.
func appendRows(w io.Writer, events []Event, withHeader bool) error {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, events, withHeader); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadKeys returns the (exchange, external id) keys already present in
// the artifact at path, so a watch pass can append only new events. A
// missing artifact yields an empty set.
func ReadKeys(path string) (map[Key]bool, error) {
	keys := make(map[Key]bool)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return keys, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(Header)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("corrupt artifact %q: %w", path, err)
		}
		if rec[0] == Header[0] { // header row
			continue
		}
		keys[Key{Exchange: Exchange(rec[1]), ExternalID: rec[10]}] = true
	}
}
