// Main package mpat-csv converts a segment dispatch ledger, as written
// by mpat-send's -ledger flag, into a CSV report written to stdout.
package main

import (
	"log"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"

	"github.com/mpat-go/mpat/sender"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	args := os.Args[1:]
	if len(args) != 1 {
		log.Fatal("usage: mpat-csv <ledger.jsonl>")
	}

	records, err := sender.LoadLedgerJSONL(args[0])
	rtx.Must(err, "Could not read ledger file %q", args[0])

	rtx.Must(gocsv.Marshal(records, os.Stdout), "Could not convert ledger to CSV")
}
