// Record lidar measures from the data socket to a text file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	catalog "lidarrec.com/lidarrec/catalog"
	rnnet "lidarrec.com/lidarrec/net"
	recorder "lidarrec.com/lidarrec/recorder"
)

type args struct {
	Host    string `arg:"--host" help:"data socket host"`
	Port    int    `arg:"--port" help:"data socket port"`
	Output  string `arg:"-o,--output" help:"output file, truncated on start"`
	Catalog string `arg:"--catalog" help:"sqlite3 database recording each run; off when empty"`
	Verbose bool   `arg:"-v,--verbose" help:"log every chunk"`
}

func (args) Description() string {
	return "Connects once to the lidar data socket and writes every received chunk as a line of text.\n"
}

// runLog wraps the optional catalog so the rest of main need not care
// whether it is enabled.
type runLog struct {
	cat *catalog.Catalog
	id  string
	log logrus.FieldLogger
}

func (l runLog) finish(outcome string, stats recorder.Stats, err error) {
	if l.cat == nil {
		return
	}
	var detail string
	if err != nil {
		detail = err.Error()
	}
	if cerr := l.cat.Finish(l.id, time.Now(), stats.Chunks, stats.Bytes, outcome, detail); cerr != nil {
		l.log.Error(cerr)
	}
}

func run(a args, logger *logrus.Entry) error {
	cfg := recorder.DefaultConfig()
	cfg.Host = a.Host
	cfg.Port = a.Port
	cfg.OutputPath = a.Output

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	id := catalog.NewRunID(started)
	logger = logger.WithField("session", id)
	rl := runLog{id: id, log: logger}
	if len(a.Catalog) != 0 {
		cat, err := catalog.Open(a.Catalog)
		if err != nil {
			return err
		}
		defer cat.Close()
		err = cat.Begin(catalog.Run{
			ID:      id,
			Machine: catalog.MachineID("lidarrec"),
			Addr:    cfg.Addr(),
			Output:  cfg.OutputPath,
			Started: started,
		})
		if err != nil {
			return err
		}
		rl.cat = cat
		logger.Infof("catalog %s", a.Catalog)
	}

	rec := recorder.New(cfg, os.Stdout, logger)
	defer rec.Close()

	err := rec.Connect(ctx)
	if errors.Is(err, recorder.ErrConnectionRefused) {
		fmt.Println("Connection failed")
		rl.finish(catalog.OutcomeRefused, rec.Stats(), nil)
		return nil
	}
	if err != nil {
		rl.finish(catalog.OutcomeError, rec.Stats(), err)
		return err
	}

	outcome, err := rec.Record(ctx)
	if err != nil {
		rl.finish(catalog.OutcomeError, rec.Stats(), err)
		return err
	}
	switch outcome {
	case recorder.OutcomeEOF:
		rl.finish(catalog.OutcomeEOF, rec.Stats(), nil)
	default:
		rl.finish(catalog.OutcomeInterrupted, rec.Stats(), nil)
	}
	return rec.Close()
}

func main() {
	a := args{
		Host:   rnnet.DefaultHost,
		Port:   rnnet.DefaultPort,
		Output: recorder.DefaultOutputPath,
	}
	arg.MustParse(&a)

	if a.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logger := logrus.WithField("prog", filepath.Base(os.Args[0]))

	if err := run(a, logger); err != nil {
		logger.Fatal(err)
	}
}
