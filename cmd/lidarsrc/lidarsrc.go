// Serve mock lidar scans on the data socket, for exercising lidarrec
// without hardware.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	rnnet "lidarrec.com/lidarrec/net"
)

func main() {
	var args struct {
		Addr     string        `arg:"--addr" default:"127.0.0.1:17685" help:"listen address"`
		Interval time.Duration `arg:"--interval" default:"100ms" help:"time between scans"`
		Points   int           `arg:"--points" default:"360" help:"measures per scan"`
		Seed     int64         `arg:"--seed" default:"1" help:"random seed for distances and qualities"`
		Progress bool          `arg:"--progress" help:"log a line every 100 scans"`
	}
	arg.MustParse(&args)

	logger := logrus.WithField("prog", filepath.Base(os.Args[0]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := rnnet.Listen(args.Addr, logger)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Infof("listening on %v, %d points every %v", b.Addr(), args.Points, args.Interval)

	served := make(chan error, 1)
	go func() { served <- b.Serve(ctx) }()

	lidar := rnnet.NewMockLidar(args.Points, args.Seed)
	n := rnnet.ScanSource(ctx, args.Interval, func() []byte {
		return []byte(rnnet.FormatScan(lidar.Scan()))
	}, b, args.Progress)

	if err := <-served; err != nil {
		logger.Error(err)
	}
	logger.Infof("stopped after %d scans", n)
}
