package fat

import (
	"testing"
	"time"
)

func TestUnmarshalTimeDate(t *testing.T) {
	t.Parallel()

	for _, entry := range []struct {
		t, d uint16
		want time.Time
	}{
		{
			t:    marshalTime(testTime),
			d:    marshalDate(testTime),
			want: testTime,
		},
		{
			d:    0x2B14,
			want: time.Date(2001, 8, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			t:    0x5401,
			d:    0x0021, // minimum date
			want: time.Date(1980, 1, 1, 10, 32, 2, 0, time.UTC),
		},
		{
			t:    0x5401,
			d:    0xFC46, // maximum date
			want: time.Date(2106, 2, 6, 10, 32, 2, 0, time.UTC),
		},
		{
			t:    0x5401,
			d:    0, // no date recorded
			want: time.Time{},
		},
	} {
		entry := entry // copy
		t.Run(entry.want.String(), func(t *testing.T) {
			t.Parallel()
			got := unmarshalTimeDate(entry.t, entry.d)
			if !got.Equal(entry.want) {
				t.Fatalf("unexpected time: got %v, want %v", got, entry.want)
			}
		})
	}
}

func TestMarshalDateBeforeEpoch(t *testing.T) {
	t.Parallel()

	old := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	if got, want := unmarshalTimeDate(marshalTime(old), marshalDate(old)), dosEpoch; !got.Equal(want) {
		t.Fatalf("unexpected time: got %v, want %v", got, want)
	}
}
