package util

import (
	"fmt"
	"strings"
)

// DumpByteSlice renders a byte slice in xxd style: a hex position column,
// the bytes in hex grouped by eight, and the printable ASCII at the end of
// each row.
func DumpByteSlice(b []byte, bytesPerRow int) string {
	var out strings.Builder
	numRows := (len(b) + bytesPerRow - 1) / bytesPerRow
	ascii := make([]byte, 0, bytesPerRow)
	for i := 0; i < numRows; i++ {
		firstByte := i * bytesPerRow
		lastByte := firstByte + bytesPerRow
		fmt.Fprintf(&out, "%08x :", firstByte)
		for j := firstByte; j < lastByte; j++ {
			if j%8 == 0 {
				out.WriteByte(' ')
			}
			switch {
			case j >= len(b):
				out.WriteString("   ")
				ascii = append(ascii, ' ')
			case b[j] < 32 || b[j] > 126:
				fmt.Fprintf(&out, " %02x", b[j])
				ascii = append(ascii, '.')
			default:
				fmt.Fprintf(&out, " %02x", b[j])
				ascii = append(ascii, b[j])
			}
		}
		fmt.Fprintf(&out, "  %s\n", string(ascii))
		ascii = ascii[:0]
	}
	return out.String()
}
