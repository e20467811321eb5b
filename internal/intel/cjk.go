package intel

import (
	"strings"
	"unicode"
)

var cjkRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3000, Hi: 0x303F, Stride: 1},
		{Lo: 0x3400, Hi: 0x4DBF, Stride: 1},
		{Lo: 0x4E00, Hi: 0x9FFF, Stride: 1},
		{Lo: 0xF900, Hi: 0xFAFF, Stride: 1},
		{Lo: 0xFE30, Hi: 0xFE4F, Stride: 1},
		{Lo: 0xFF00, Hi: 0xFFEF, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x20000, Hi: 0x2A6DF, Stride: 1},
		{Lo: 0x2A700, Hi: 0x2CEAF, Stride: 1},
		{Lo: 0x2F800, Hi: 0x2FA1F, Stride: 1},
	},
}

// IsCJK reports whether r is a CJK ideograph, CJK punctuation or a fullwidth form.
func IsCJK(r rune) bool {
	return unicode.Is(cjkRanges, r)
}

// StripCJK removes CJK code points from s.
func StripCJK(s string) string {
	return strings.Map(func(r rune) rune {
		if IsCJK(r) {
			return -1
		}
		return r
	}, s)
}
