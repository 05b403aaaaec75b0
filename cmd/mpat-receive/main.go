// Main package mpat-receive implements a command line tool that runs
// the Receiver Endpoint until terminated, writing each finalized
// session to session_<id>.dat in the configured output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/mpat-go/mpat/config"
	"github.com/mpat-go/mpat/finalize"
	"github.com/mpat-go/mpat/logging"
	"github.com/mpat-go/mpat/receiver"
	"github.com/mpat-go/mpat/registry"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	channelsFile = flag.String("channels", "", "Path to a JSON channel list ({name, host, port} records).")
	outputDir    = flag.String("output", ".", "Directory in which to write session_<id>.dat files.")
	archiveDir   = flag.String("archive", "", "If set, also write a zstd-compressed copy of each session under this directory.")
	promPort     = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	if *channelsFile == "" {
		rtx.Must(fmt.Errorf("missing required -channels flag"), "bad invocation")
	}

	channels, err := config.LoadChannels(*channelsFile)
	rtx.Must(err, "Could not load channel list %q", *channelsFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	reg := registry.New()
	fin := finalize.New(reg, finalize.FileSink(*outputDir))
	if *archiveDir != "" {
		rtx.Must(os.MkdirAll(*archiveDir, 0755), "Could not create archive directory %q", *archiveDir)
		fin.Archive = finalize.ZstdArchiveSink(*archiveDir)
	}

	r := receiver.New(fin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Log.Info("received shutdown signal")
		cancel()
	}()

	logging.Log.Infof("receiver serving %d channels", len(channels))
	rtx.Must(r.Serve(ctx, channels), "receiver exited with an error")
}
