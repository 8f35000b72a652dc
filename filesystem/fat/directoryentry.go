package fat

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

const (
	direntSize = 32

	attrReadOnly    = 0x01
	attrHidden      = 0x02
	attrSystem      = 0x04
	attrVolumeLabel = 0x08
	attrDirectory   = 0x10
	attrArchive     = 0x20
	// attrLongName marks a VFAT long-name entry
	attrLongName = 0x0f

	// first name byte of a deleted entry
	deletedEntryMarker = 0xe5
	// first name byte of the entry terminating a directory
	endOfDirectoryMarker = 0x00

	// each long-name entry carries 13 UCS-2 code units
	charsPerLongEntry = 13
	// set in the sequence byte of the physically first long-name entry
	longNameLastFlag = 0x40
	longNameSeqMask  = 0x1f
)

// the raw 11-byte names of the "." and ".." entries; they never carry long
// names
const (
	dotEntryName    = ".          "
	dotDotEntryName = "..         "
)

// fatEpoch is the earliest timestamp FAT can represent, 1980-01-01 00:00 UTC.
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// dirent is a decoded short (8.3) directory entry.
type dirent struct {
	shortName  [11]byte
	attr       byte
	cluster    uint32
	size       uint32
	createTime time.Time
	accessTime time.Time
	modifyTime time.Time
}

// direntFromBytes decodes a 32-byte short entry.
func direntFromBytes(b []byte) *dirent {
	d := &dirent{
		attr: b[11],
		size: binary.LittleEndian.Uint32(b[28:32]),
	}
	copy(d.shortName[:], b[0:11])
	clusterHigh := binary.LittleEndian.Uint16(b[20:22])
	clusterLow := binary.LittleEndian.Uint16(b[26:28])
	d.cluster = uint32(clusterHigh)<<16 | uint32(clusterLow)
	d.createTime = unpackTimestamp(binary.LittleEndian.Uint16(b[16:18]), binary.LittleEndian.Uint16(b[14:16]))
	d.accessTime = unpackTimestamp(binary.LittleEndian.Uint16(b[18:20]), 0)
	d.modifyTime = unpackTimestamp(binary.LittleEndian.Uint16(b[24:26]), binary.LittleEndian.Uint16(b[22:24]))
	return d
}

// toBytes encodes the entry into its 32-byte on-disk form.
func (d *dirent) toBytes() []byte {
	b := make([]byte, direntSize)
	copy(b[0:11], d.shortName[:])
	b[11] = d.attr
	ctime, cdate := packTimestamp(d.createTime)
	binary.LittleEndian.PutUint16(b[14:16], ctime)
	binary.LittleEndian.PutUint16(b[16:18], cdate)
	_, adate := packTimestamp(d.accessTime)
	binary.LittleEndian.PutUint16(b[18:20], adate)
	binary.LittleEndian.PutUint16(b[20:22], uint16(d.cluster>>16))
	mtime, mdate := packTimestamp(d.modifyTime)
	binary.LittleEndian.PutUint16(b[22:24], mtime)
	binary.LittleEndian.PutUint16(b[24:26], mdate)
	binary.LittleEndian.PutUint16(b[26:28], uint16(d.cluster&0xffff))
	binary.LittleEndian.PutUint32(b[28:32], d.size)
	return b
}

func (d *dirent) isDir() bool {
	return d.attr&attrDirectory == attrDirectory
}

// displayName reconstructs a name from the 8.3 fields: the space-trimmed base
// joined with the space-trimmed extension. Directories carry no separating
// dot.
func (d *dirent) displayName() string {
	base := strings.TrimRight(string(d.shortName[0:8]), " ")
	extension := strings.TrimRight(string(d.shortName[8:11]), " ")
	if extension == "" {
		return base
	}
	if d.isDir() {
		return base + extension
	}
	return base + "." + extension
}

// packTimestamp converts a time to the packed FAT time and date words. Times
// before the FAT epoch collapse to it; seconds are stored halved.
func packTimestamp(t time.Time) (timeVal, dateVal uint16) {
	t = t.UTC()
	if t.Before(fatEpoch) {
		t = fatEpoch
	}
	year := t.Year() - 1980
	if year > 127 {
		year = 127
	}
	dateVal = uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	timeVal = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return timeVal, dateVal
}

// unpackTimestamp converts packed FAT date and time words back to a UTC time.
func unpackTimestamp(dateVal, timeVal uint16) time.Time {
	if dateVal == 0 {
		return fatEpoch
	}
	year := int(dateVal>>9&0x7f) + 1980
	month := time.Month(dateVal >> 5 & 0x0f)
	if month == 0 {
		month = time.January
	}
	day := int(dateVal & 0x1f)
	if day == 0 {
		day = 1
	}
	hour := int(timeVal >> 11 & 0x1f)
	minute := int(timeVal >> 5 & 0x3f)
	second := int(timeVal&0x1f) * 2
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

// checksum computes the rotating checksum of an 11-byte short name, stamped
// into every long-name entry of the chain that precedes it.
func checksum(shortName [11]byte) byte {
	var sum byte
	for _, c := range shortName {
		sum = ((sum & 1) << 7) + (sum >> 1) + c
	}
	return sum
}

// calculateSlots returns the number of long-name entries needed for a name.
func calculateSlots(name string) int {
	units := len(utf16.Encode([]rune(name)))
	slots := units / charsPerLongEntry
	if units%charsPerLongEntry != 0 {
		slots++
	}
	if slots == 0 {
		slots = 1
	}
	return slots
}

// shortNameFromLong derives an 8.3 name: the characters before the first dot,
// space-padded to 8, and the characters after the last dot, space-padded
// to 3, both uppercased. When the result collides with a name in taken, a ~N
// suffix is folded into the base until it is unique.
func shortNameFromLong(name string, taken map[[11]byte]bool) [11]byte {
	base := name
	if i := strings.Index(name, "."); i >= 0 {
		base = name[:i]
	}
	var extension string
	if i := strings.LastIndex(name, "."); i >= 0 {
		extension = name[i+1:]
	}
	base = sanitizeShort(base, 8)
	extension = sanitizeShort(extension, 3)

	pack := func(b string) (sn [11]byte) {
		copy(sn[:], "           ")
		copy(sn[0:8], b)
		copy(sn[8:11], extension)
		return sn
	}

	sn := pack(base)
	if !taken[sn] {
		return sn
	}
	for n := 1; ; n++ {
		suffix := "~" + strconv.Itoa(n)
		keep := 8 - len(suffix)
		if keep > len(base) {
			keep = len(base)
		}
		sn = pack(base[:keep] + suffix)
		if !taken[sn] {
			return sn
		}
	}
}

// sanitizeShort uppercases a name fragment and replaces characters that
// cannot appear in an 8.3 name, truncating to at most size characters.
func sanitizeShort(s string, size int) string {
	s = strings.ToUpper(s)
	out := make([]byte, 0, size)
	for i := 0; i < len(s) && len(out) < size; i++ {
		c := s[i]
		if c <= 0x20 || c == '.' || c == '"' || c == '*' || c == '/' || c == '\\' || c == '|' || c >= 0x7f {
			c = '_'
		}
		out = append(out, c)
	}
	return string(out)
}

// offsets of the three UCS-2 runs within a long-name entry
var longNameRuns = [3]struct{ start, units int }{
	{1, 5},
	{14, 6},
	{28, 2},
}

// encodeLongName produces the long-name entries for a name in physical
// order: the first entry on disk holds the last characters and carries the
// last-entry flag, the final entry holds the first 13 characters with
// sequence number 1. The short-name checksum is stamped into every entry.
func encodeLongName(name string, shortName [11]byte) []byte {
	units := utf16.Encode([]rune(name))
	slots := calculateSlots(name)

	// terminate with 0x0000, fill the rest of the last entry with 0xffff
	buf := make([]uint16, slots*charsPerLongEntry)
	copy(buf, units)
	for i := len(units) + 1; i < len(buf); i++ {
		buf[i] = 0xffff
	}

	sum := checksum(shortName)
	b := make([]byte, slots*direntSize)
	for phys := 0; phys < slots; phys++ {
		logical := slots - 1 - phys
		seq := byte(logical + 1)
		if phys == 0 {
			seq |= longNameLastFlag
		}
		e := b[phys*direntSize : (phys+1)*direntSize]
		e[0] = seq
		e[11] = attrLongName
		e[12] = 0
		e[13] = sum
		chunk := buf[logical*charsPerLongEntry : (logical+1)*charsPerLongEntry]
		unit := 0
		for _, run := range longNameRuns {
			for i := 0; i < run.units; i++ {
				binary.LittleEndian.PutUint16(e[run.start+i*2:run.start+i*2+2], chunk[unit])
				unit++
			}
		}
	}
	return b
}

// decodeLongName reassembles a name from its long-name entries, given in
// physical order. Returns the empty string when the run is not a valid chain.
func decodeLongName(entries [][]byte) string {
	if len(entries) == 0 {
		return ""
	}
	if entries[0][0]&longNameLastFlag == 0 {
		return ""
	}
	if int(entries[0][0]&longNameSeqMask) != len(entries) {
		return ""
	}
	var units []uint16
	// iterate from the highest physical index down: that entry holds the
	// first characters of the name
	for j := len(entries) - 1; j >= 0; j-- {
		e := entries[j]
		for _, run := range longNameRuns {
			for i := 0; i < run.units; i++ {
				units = append(units, binary.LittleEndian.Uint16(e[run.start+i*2:run.start+i*2+2]))
			}
		}
	}
	for i, u := range units {
		if u == 0x0000 {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units))
}
