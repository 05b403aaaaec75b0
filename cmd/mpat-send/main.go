// Main package mpat-send implements a command line tool that sends one
// payload over a set of channels using the Sender Session, then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/mpat-go/mpat/channel"
	"github.com/mpat-go/mpat/config"
	"github.com/mpat-go/mpat/logging"
	"github.com/mpat-go/mpat/sender"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	channelsFile = flag.String("channels", "", "Path to a JSON channel list ({name, host, port} records).")
	inputFile    = flag.String("input", "", "Path to the payload file to send. Default reads stdin.")
	sessionID    = flag.Uint64("session_id", 0, "32-bit session identifier. Default generates a random one.")
	retryLimit   = flag.Int("retry_limit", sender.DefaultRetryLimit, "Per-segment retransmission attempts before giving up.")
	ledgerFile   = flag.String("ledger", "", "If set, write the segment dispatch ledger as line-delimited JSON to this path (see cmd/mpat-csv).")
	promPort     = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	if *channelsFile == "" {
		rtx.Must(fmt.Errorf("missing required -channels flag"), "bad invocation")
	}

	channels, err := config.LoadChannels(*channelsFile)
	rtx.Must(err, "Could not load channel list %q", *channelsFile)

	var payload []byte
	if *inputFile != "" {
		payload, err = os.ReadFile(*inputFile)
		rtx.Must(err, "Could not read input file %q", *inputFile)
	} else {
		payload, err = io.ReadAll(os.Stdin)
		rtx.Must(err, "Could not read payload from stdin")
	}

	id := uint32(*sessionID)
	if id == 0 {
		id, err = sender.NewRandomSessionID()
		rtx.Must(err, "Could not generate a session id")
	}

	endpoints := make([]*channel.Endpoint, len(channels))
	for i, c := range channels {
		endpoints[i] = channel.NewEndpoint(c.Name, c.Addr())
	}

	s := sender.NewSession(id, endpoints)
	s.RetryLimit = *retryLimit

	logging.WithField("session_id", id).Infof("sending %d bytes over %d channels", len(payload), len(channels))
	rtx.Must(s.Send(ctx, payload), "send failed")
	logging.WithField("session_id", id).Info("send complete")

	if *ledgerFile != "" {
		rtx.Must(s.SaveLedgerJSONL(*ledgerFile), "Could not write ledger file %q", *ledgerFile)
	}
}
