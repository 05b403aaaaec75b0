package sender

import (
	"bufio"
	"encoding/json"
	"os"
)

// SaveLedgerJSONL writes the session's segment ledger to path, one
// JSON-encoded Record per line. This is the interchange format
// cmd/mpat-csv reads to produce a human-readable CSV report; spec.md
// §1 calls CSV result reporting an out-of-scope peripheral utility,
// so the ledger itself stays a plain line-delimited format rather than
// a bespoke binary one.
func (s *Session) SaveLedgerJSONL(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range s.Ledger() {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

// LoadLedgerJSONL reads a line-delimited JSON ledger file previously
// written by SaveLedgerJSONL.
func LoadLedgerJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
