package fat

import (
	"fmt"

	"github.com/Zargontapel/dito/filesystem"
)

// rawDirectory wraps the raw bytes of a directory: a sequence of 32-byte
// records terminated by the first record whose name byte is zero.
type rawDirectory struct {
	data []byte
}

func (d *rawDirectory) numSlots() int {
	return len(d.data) / direntSize
}

func (d *rawDirectory) slot(i int) []byte {
	return d.data[i*direntSize : (i+1)*direntSize]
}

// locate finds the n'th (0-based) live short entry and returns the physical
// slot range [start, end) covering the entry together with the long-name run
// immediately preceding it. Deleted entries break a long-name run.
func (d *rawDirectory) locate(n int) (start, end int, err error) {
	lfnStart := -1
	live := 0
	for i := 0; i < d.numSlots(); i++ {
		e := d.slot(i)
		switch {
		case e[0] == endOfDirectoryMarker:
			return 0, 0, fmt.Errorf("directory entry %d: %w", n, filesystem.ErrNotFound)
		case e[0] == deletedEntryMarker:
			lfnStart = -1
		case e[11] == attrLongName:
			if lfnStart == -1 {
				lfnStart = i
			}
		default:
			if live == n {
				if lfnStart == -1 {
					lfnStart = i
				}
				return lfnStart, i + 1, nil
			}
			live++
			lfnStart = -1
		}
	}
	return 0, 0, fmt.Errorf("directory entry %d: %w", n, filesystem.ErrNotFound)
}

// freeRun returns the slot index where a run of `slots` new entries can be
// placed: either the start of a contiguous run of that many deleted entries,
// or the position of the end-of-directory marker. atEnd reports the latter
// case, where the caller owns zeroing the slots that follow.
func (d *rawDirectory) freeRun(slots int) (pos int, atEnd bool) {
	run := 0
	runStart := 0
	for i := 0; i < d.numSlots(); i++ {
		e := d.slot(i)
		if e[0] == endOfDirectoryMarker {
			return i, true
		}
		if e[0] == deletedEntryMarker {
			if run == 0 {
				runStart = i
			}
			run++
			if run == slots {
				return runStart, false
			}
		} else {
			run = 0
		}
	}
	// no marker found: the directory is packed full
	return d.numSlots(), true
}

// compact removes the slots [start, end), shifting everything after them down
// and zeroing the vacated tail.
func (d *rawDirectory) compact(start, end int) {
	copy(d.data[start*direntSize:], d.data[end*direntSize:])
	tail := len(d.data) - (end-start)*direntSize
	for i := tail; i < len(d.data); i++ {
		d.data[i] = 0
	}
}

// longNameAt reassembles the long name stored in the run [start, end-1)
// preceding the short entry at end-1, or "" when the entry has none.
func (d *rawDirectory) longNameAt(start, end int) string {
	if end-start < 2 {
		return ""
	}
	entries := make([][]byte, 0, end-1-start)
	for i := start; i < end-1; i++ {
		entries = append(entries, d.slot(i))
	}
	return decodeLongName(entries)
}

// shortNames collects the 8.3 names of all live entries, for collision
// avoidance when deriving new short names.
func (d *rawDirectory) shortNames() map[[11]byte]bool {
	taken := map[[11]byte]bool{}
	for i := 0; i < d.numSlots(); i++ {
		e := d.slot(i)
		if e[0] == endOfDirectoryMarker {
			break
		}
		if e[0] == deletedEntryMarker || e[11] == attrLongName {
			continue
		}
		var sn [11]byte
		copy(sn[:], e[0:11])
		taken[sn] = true
	}
	return taken
}
