package bootsector

import (
	"bytes"
	"strings"
)

// ShortName is the on-disk 8.3 form of a file name: eight bytes of name and three
// of extension, uppercase and padded with spaces.
type ShortName [11]byte

// EncodeShortName converts a file name into its 8.3 form. Anything in the stem
// past eight characters is dropped, as is anything in the extension past three.
// Only the first period separates the stem from the extension.
func EncodeShortName(name string) ShortName {
	var encoded ShortName
	for i := range encoded {
		encoded[i] = ' '
	}

	stem, extension, _ := strings.Cut(upperASCII(name), ".")

	copy(encoded[:8], truncate(stem, 8))
	copy(encoded[8:], truncate(extension, 3))
	return encoded
}

// upperASCII uppercases a-z only. Any other byte, including those of multibyte
// characters, is kept as-is so the result has the same length.
func upperASCII(s string) string {
	upper := []byte(s)
	for i, c := range upper {
		if c >= 'a' && c <= 'z' {
			upper[i] = c - ('a' - 'A')
		}
	}
	return string(upper)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// String converts the on-disk representation of a file name into its
// user-friendly form.
func (n ShortName) String() string {
	stem := bytes.TrimRight(n[:8], " ")
	extension := bytes.TrimRight(n[8:], " ")

	if len(extension) == 0 {
		return string(stem)
	}
	return string(stem) + "." + string(extension)
}
