package fat

import "time"

// dosEpoch is the earliest point in time a FAT timestamp can express.
var dosEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

func marshalTime(t time.Time) uint16 {
	if t.Before(dosEpoch) {
		return 0
	}
	return uint16(t.Hour())<<11 |
		uint16(t.Minute())<<5 |
		uint16(t.Second()/2)
}

func marshalDate(t time.Time) uint16 {
	if t.Before(dosEpoch) {
		t = dosEpoch
	}
	return uint16(t.Year()-1980)<<9 |
		uint16(t.Month())<<5 |
		uint16(t.Day())
}

// unmarshalTimeDate returns the zero time for entries without a date, such
// as the ones written by tools which leave the fields empty.
func unmarshalTimeDate(t, d uint16) time.Time {
	if d == 0 {
		return time.Time{}
	}
	return time.Date(
		1980+int(d>>9),
		time.Month((d>>5)&0xF),
		int(d&0x1F),
		int(t>>11),
		int((t>>5)&0x3F),
		int(t&0x1F)*2,
		0,
		time.UTC)
}
