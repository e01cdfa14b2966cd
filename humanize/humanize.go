// Package humanize formats byte counts for status lines.
package humanize

import "fmt"

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

func scaled(n uint64, suffix string) string {
	switch {
	case n > gib:
		return fmt.Sprintf("%.1f Gi%s", float64(n)/gib, suffix)
	case n > mib:
		return fmt.Sprintf("%.f Mi%s", float64(n)/mib, suffix)
	case n > kib:
		return fmt.Sprintf("%.f Ki%s", float64(n)/kib, suffix)
	default:
		return fmt.Sprintf("%d %s", n, suffix)
	}
}

// BPS formats a transfer rate in bytes per second.
func BPS(bps uint64) string { return scaled(bps, "B/s") }

// Bytes formats a byte count.
func Bytes(bytes uint64) string { return scaled(bytes, "B") }

// Sectors formats a count of 512 byte sectors as the size they span.
func Sectors(sectors uint32) string { return Bytes(uint64(sectors) * 512) }
