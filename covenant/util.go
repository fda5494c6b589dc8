package covenant

import "math/bits"

// addU64 returns a+b or ERR_ARITHMETIC_OVERFLOW.
func addU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, spenderr(ERR_ARITHMETIC_OVERFLOW, "u64 addition overflow")
	}
	return sum, nil
}

// mulU64 returns a*b or ERR_ARITHMETIC_OVERFLOW when the product needs more than 64 bits.
func mulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, spenderr(ERR_ARITHMETIC_OVERFLOW, "u64 multiplication overflow")
	}
	return lo, nil
}

func appendU16le(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU32le(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64le(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
}
