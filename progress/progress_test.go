package progress

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestLine(t *testing.T) {
	var p Reporter
	p.SetStatus("create")
	if got, want := p.line(0, 512), "\r[create] 512 B/s"; !strings.HasPrefix(got, want) {
		t.Fatalf("line = %q, want prefix %q", got, want)
	}

	p.SetTotal(4 * 1024 * 1024)
	if got, want := p.line(1024*1024, 2*1024*1024), "\r[create] 25.00% of 4 MiB, writing at 2 MiB/s"; !strings.HasPrefix(got, want) {
		t.Fatalf("line = %q, want prefix %q", got, want)
	}
}

func TestAddReset(t *testing.T) {
	Reset()
	Add(100)
	Add(23)
	if got, want := Reset(), uint64(123); got != want {
		t.Fatalf("Reset = %d, want %d", got, want)
	}
	if got := Reset(); got != 0 {
		t.Fatalf("Reset after Reset = %d, want 0", got)
	}
}

func TestReportStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		defer close(done)
		var p Reporter
		p.Report(ctx, &buf)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Report did not return after cancel")
	}
}
