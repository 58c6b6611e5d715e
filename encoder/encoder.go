// Package encoder converts payload bytes into the bit sequence a serial
// transmitter shifts out (most significant bit first) and back again.
package encoder

import (
	"github.com/pkg/errors"
)

// EncodeByte appends the 8 bits of b to into, bit 7 first.
func EncodeByte(b uint8, into *[]uint8) {
	for i := 7; i >= 0; i-- {
		*into = append(*into, (b>>i)&0x01)
	}
}

// Encode returns the bit sequence for the whole payload.
func Encode(payload ...uint8) []uint8 {
	bits := make([]uint8, 0, len(payload)*8)
	for _, b := range payload {
		EncodeByte(b, &bits)
	}
	return bits
}

// Decode reassembles bytes from an MSB first bit sequence. The sequence must be
// whole bytes and contain only 0/1 values.
func Decode(bits []uint8) ([]uint8, error) {
	if len(bits)%8 != 0 {
		return nil, errors.Errorf("bit sequence length %d isn't a multiple of 8", len(bits))
	}
	out := make([]uint8, 0, len(bits)/8)
	var b uint8
	for i, bit := range bits {
		if bit > 1 {
			return nil, errors.Errorf("bit %d has value %d", i, bit)
		}
		b = b<<1 | bit
		if i%8 == 7 {
			out = append(out, b)
			b = 0
		}
	}
	return out, nil
}
