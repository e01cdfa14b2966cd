// Package progress counts the bytes written into an image and periodically
// prints a status line about them.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gokrazy/mkimg/humanize"
)

var bytesWritten uint64

// Reset zeroes the counter and returns its previous value.
func Reset() uint64 {
	return atomic.SwapUint64(&bytesWritten, 0)
}

// Add adds n bytes to the counter.
func Add(n int64) {
	atomic.AddUint64(&bytesWritten, uint64(n))
}

type Reporter struct {
	total uint64

	mu     sync.Mutex
	status string
}

func (p *Reporter) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *Reporter) SetTotal(total uint64) {
	atomic.StoreUint64(&p.total, total)
}

func (p *Reporter) getStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Reporter) line(written, bytesPerS uint64) string {
	rate := humanize.BPS(bytesPerS)
	status := rate
	if total := atomic.LoadUint64(&p.total); total > 0 {
		pct := float64(written) / float64(total) * 100
		status = fmt.Sprintf("%02.2f%% of %s, writing at %s",
			pct,
			humanize.Bytes(total),
			rate)
	}
	return fmt.Sprintf("\r[%s] %s                 ", p.getStatus(), status)
}

// Report prints a status line to w every second until ctx is done.
func (p *Reporter) Report(ctx context.Context, w io.Writer) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	last := atomic.LoadUint64(&bytesWritten)
	for {
		select {
		case <-ticker.C:
			written := atomic.LoadUint64(&bytesWritten)
			if written < last {
				// written was reset
				last = 0
			}
			bytesPerS := written - last
			last = written
			fmt.Fprint(w, p.line(written, bytesPerS))
		case <-ctx.Done():
			return
		}
	}
}
