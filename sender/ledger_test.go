package sender_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mpat-go/mpat/channel"
	"github.com/mpat-go/mpat/sender"
)

func TestSaveAndLoadLedgerJSONL(t *testing.T) {
	dir := t.TempDir()
	channels := startReceiver(t, dir, 1)
	endpoints := []*channel.Endpoint{channel.NewEndpoint(channels[0].Name, channels[0].Addr())}

	s := sender.NewSession(9, endpoints)
	if err := s.Send(context.Background(), []byte("ledger round trip")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	path := filepath.Join(dir, "ledger.jsonl")
	if err := s.SaveLedgerJSONL(path); err != nil {
		t.Fatalf("SaveLedgerJSONL: %v", err)
	}

	records, err := sender.LoadLedgerJSONL(path)
	if err != nil {
		t.Fatalf("LoadLedgerJSONL: %v", err)
	}
	if len(records) != len(s.Ledger()) {
		t.Fatalf("got %d records, want %d", len(records), len(s.Ledger()))
	}
	if records[0].SessionID != 9 {
		t.Errorf("got session_id %d, want 9", records[0].SessionID)
	}
}
