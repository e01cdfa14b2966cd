package fat

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// lfnChars is the number of UTF-16 code units one long name entry holds.
	lfnChars = 13

	maxNameLength = 255
)

// validName reports whether name can be stored as a long file name.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." || !utf8.ValidString(name) {
		return false
	}
	if len(utf16.Encode([]rune(name))) > maxNameLength {
		return false
	}
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(`"*/:<>?\|`, r) {
			return false
		}
	}
	return true
}

// validShortChar reports whether r may appear in an upper-cased 8.3 name.
func validShortChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("$%'-_@~`!(){}^#&", r):
		return true
	}
	return false
}

func packShort(base, ext string) [11]byte {
	var short [11]byte
	copy(short[:], padded(base, 8))
	copy(short[8:], padded(ext, 3))
	if short[0] == deletedEntry {
		short[0] = 0x05
	}
	return short
}

// exactShort returns the 8.3 form of name if name is already a valid
// upper-case short name and thus needs no long name entries.
func exactShort(name string) ([11]byte, bool) {
	base, ext := name, ""
	if idx := strings.IndexByte(name, '.'); idx > -1 {
		base, ext = name[:idx], name[idx+1:]
		if ext == "" {
			return [11]byte{}, false
		}
	}
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return [11]byte{}, false
	}
	for _, r := range base + ext {
		if !validShortChar(r) {
			return [11]byte{}, false
		}
	}
	return packShort(base, ext), true
}

// shortBasis derives the upper-case base and extension an 8.3 alias for name
// is generated from.
func shortBasis(name string) (base, ext string) {
	clean := func(s string, max int) string {
		var sb strings.Builder
		for _, r := range strings.ToUpper(s) {
			if sb.Len() == max {
				break
			}
			switch {
			case r == ' ' || r == '.':
				continue
			case validShortChar(r):
				sb.WriteRune(r)
			default:
				sb.WriteByte('_')
			}
		}
		return sb.String()
	}
	trimmed := strings.TrimLeft(name, ".")
	if idx := strings.LastIndexByte(trimmed, '.'); idx > -1 {
		base, ext = trimmed[:idx], trimmed[idx+1:]
	} else {
		base = trimmed
	}
	base, ext = clean(base, 8), clean(ext, 3)
	if base == "" {
		base = "_"
	}
	return base, ext
}

func shortString(short [11]byte) string {
	base := strings.TrimRight(string(short[:8]), " ")
	if base != "" && base[0] == 0x05 {
		base = "\xe5" + base[1:]
	}
	ext := strings.TrimRight(string(short[8:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// displayShort applies the lower-case flags some systems store in the
// reserved byte of an entry instead of writing long name entries.
func displayShort(short [11]byte, flags uint8) string {
	base := strings.TrimRight(string(short[:8]), " ")
	if base != "" && base[0] == 0x05 {
		base = "\xe5" + base[1:]
	}
	ext := strings.TrimRight(string(short[8:]), " ")
	if flags&0x08 != 0 {
		base = strings.ToLower(base)
	}
	if flags&0x10 != 0 {
		ext = strings.ToLower(ext)
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// generateShort picks an 8.3 alias for name which does not collide with any
// alias in taken, preferring the lossless upper-case form over numeric tails.
func generateShort(name string, taken map[[11]byte]bool) ([11]byte, bool) {
	if short, ok := exactShort(strings.ToUpper(name)); ok && !taken[short] {
		return short, true
	}
	base, ext := shortBasis(name)
	for n := 1; n < 1000000; n++ {
		tail := "~" + strconv.Itoa(n)
		b := base
		if len(b)+len(tail) > 8 {
			b = b[:8-len(tail)]
		}
		short := packShort(b+tail, ext)
		if !taken[short] {
			return short, true
		}
	}
	return [11]byte{}, false
}

func checksum(short [11]byte) byte {
	var sum byte
	for _, c := range short {
		sum = (sum >> 1) + (sum << 7) + c
	}
	return sum
}

// longNameEntries returns the long name entries for name in on-disk order,
// i.e. starting with the last fragment.
func longNameEntries(name string, sum byte) []lfnEntry {
	units := utf16.Encode([]rune(name))
	n := (len(units) + lfnChars - 1) / lfnChars
	buf := make([]uint16, n*lfnChars)
	copy(buf, units)
	if len(units) < len(buf) {
		// NUL terminator, then padding
		for idx := len(units) + 1; idx < len(buf); idx++ {
			buf[idx] = 0xFFFF
		}
	}
	entries := make([]lfnEntry, 0, n)
	for seq := n; seq >= 1; seq-- {
		chunk := buf[(seq-1)*lfnChars : seq*lfnChars]
		e := lfnEntry{
			Sequence:  byte(seq),
			Attribute: attrLongName,
			Checksum:  sum,
		}
		if seq == n {
			e.Sequence |= lastLongName
		}
		copy(e.First[:], chunk[0:5])
		copy(e.Second[:], chunk[5:11])
		copy(e.Third[:], chunk[11:13])
		entries = append(entries, e)
	}
	return entries
}

func (e *lfnEntry) chars() []uint16 {
	chars := make([]uint16, 0, lfnChars)
	chars = append(chars, e.First[:]...)
	chars = append(chars, e.Second[:]...)
	chars = append(chars, e.Third[:]...)
	return chars
}

func decodeLongName(fragments [][]uint16) string {
	var units []uint16
	for _, fragment := range fragments {
		for _, u := range fragment {
			if u == 0 {
				return string(utf16.Decode(units))
			}
			units = append(units, u)
		}
	}
	return string(utf16.Decode(units))
}
