package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"silvergate/internal/ledger"
	"silvergate/internal/model"
)

// lastrun prints the most recent pipeline run and exits nonzero when it
// failed. The external scheduler polls this after each invocation.
func main() {
	var (
		bootstrap   string
		source      string
		topicLatest string
		ledgerDir   string
	)
	flag.StringVar(&bootstrap, "bootstrap", "localhost:9092", "kafka bootstrap")
	flag.StringVar(&source, "source", "file", "latest-run source: file|kafka")
	flag.StringVar(&topicLatest, "topic-latest", "silver.runs.latest", "latest-run topic")
	flag.StringVar(&ledgerDir, "ledger-dir", "./ledger", "ledger dir for file mode")
	flag.Parse()

	var r ledger.Reader
	if source == "kafka" {
		r = ledger.NewKafkaLatestReader([]string{bootstrap}, topicLatest, ledger.LatestKey)
	} else {
		r = ledger.NewFilesystemLatest(ledgerDir)
	}

	run, err := r.ReadLatest()
	if err != nil {
		log.Fatalf("read latest run: %v", err)
	}
	fmt.Print(ledger.Report(run))
	if run.Status == model.StatusFailed {
		os.Exit(1)
	}
}
