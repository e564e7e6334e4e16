package net

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanSource sends scan() to b every interval until ctx is done. Ticks
// with no connected clients are skipped. Returns the number of scans
// sent.
func ScanSource(ctx context.Context, interval time.Duration, scan func() []byte, b *Broadcaster, progress bool) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var n int
	for {
		select {
		case <-ctx.Done():
			return n
		case <-ticker.C:
			if b.Clients() == 0 {
				continue
			}
			if err := b.Send(scan()); err != nil {
				logrus.Warn(err)
				continue
			}
			n++
			if progress && n%100 == 0 {
				logrus.Infof("%d scans sent", n)
			}
		}
	}
}
