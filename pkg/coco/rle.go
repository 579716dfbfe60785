package coco

import "github.com/pkg/errors"

// EncodeCompressedCounts produces the compact string form of RLE counts used by pycocotools.
// Each count (after the first two, as a delta to the count two positions back) is written as
// little-endian groups of 5 bits with a continuation bit, offset into printable ASCII.
func EncodeCompressedCounts(counts []uint32) string {
	out := make([]byte, 0, len(counts)*2)
	for i := range counts {
		x := int64(counts[i])
		if i > 2 {
			x -= int64(counts[i-2])
		}
		for more := true; more; {
			c := x & 0x1f
			x >>= 5
			if c&0x10 != 0 {
				more = x != -1
			} else {
				more = x != 0
			}
			if more {
				c |= 0x20
			}
			out = append(out, byte(c+48))
		}
	}
	return string(out)
}

// DecodeCompressedCounts parses the compact pycocotools string form.
func DecodeCompressedCounts(s string) ([]uint32, error) {
	var counts []uint32
	for p := 0; p < len(s); {
		var x int64
		k := uint(0)
		for more := true; more; {
			if p >= len(s) {
				return nil, errors.New("truncated compressed rle counts")
			}
			c := int64(s[p]) - 48
			if c < 0 || c > 63 {
				return nil, errors.Errorf("invalid character %q in compressed rle counts", s[p])
			}
			x |= (c & 0x1f) << (5 * k)
			more = c&0x20 != 0
			p++
			k++
			if !more && c&0x10 != 0 {
				x |= -1 << (5 * k)
			}
		}
		if len(counts) > 2 {
			x += int64(counts[len(counts)-2])
		}
		if x < 0 {
			return nil, errors.New("negative run length in compressed rle counts")
		}
		counts = append(counts, uint32(x))
	}
	return counts, nil
}
