package humanize

import "testing"

func TestBytes(t *testing.T) {
	for _, tt := range []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1024, "1024 B"},
		{512 * 1024, "512 KiB"},
		{6 * 1024 * 1024, "6 MiB"},
		{32 * 1024 * 1024, "32 MiB"},
	} {
		if got := Bytes(tt.in); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBPS(t *testing.T) {
	if got, want := BPS(3*1024*1024), "3 MiB/s"; got != want {
		t.Errorf("BPS = %q, want %q", got, want)
	}
	if got, want := BPS(10), "10 B/s"; got != want {
		t.Errorf("BPS = %q, want %q", got, want)
	}
}

func TestSectors(t *testing.T) {
	// the declared size of a deceptive image
	if got, want := Sectors(98304), "48 MiB"; got != want {
		t.Errorf("Sectors = %q, want %q", got, want)
	}
	if got, want := Bytes(3*1024*1024*1024), "3.0 GiB"; got != want {
		t.Errorf("Bytes = %q, want %q", got, want)
	}
}
