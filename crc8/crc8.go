//-----------------------------------------------------------------------------
/*

CRC-8 Calculations

Polynomial 0x07 (x^8 + x^2 + x + 1), MSB first, initial value 0,
no input/output reflection, no final xor. This is the plain "CRC-8"
as catalogued by Greg Cook (check value 0xf4).

The crc is computed a bit at a time. There is no lookup table.

*/
//-----------------------------------------------------------------------------

package crc8

//-----------------------------------------------------------------------------

// Poly is the generator polynomial.
const Poly = 0x07

// Trace is called twice per input byte: once after the byte has been
// xored into the accumulator (stage Xor) and once after the 8 shift
// steps (stage Shift). idx is the byte offset within the buffer.
type Trace func(stage Stage, idx int, val, crc uint8)

// Stage identifies the point in the fold a Trace call is made from.
type Stage int

const (
	Xor   Stage = iota // after crc ^= val
	Shift              // after the 8 bit steps
)

func (s Stage) String() string {
	switch s {
	case Xor:
		return "xor"
	case Shift:
		return "shift"
	}
	return "unknown"
}

//-----------------------------------------------------------------------------

// shift8 runs the 8 bit steps for one byte.
func shift8(crc uint8) uint8 {
	for j := 0; j < 8; j++ {
		if crc&0x80 != 0 {
			crc = (crc << 1) ^ Poly
		} else {
			crc <<= 1
		}
	}
	return crc
}

// Update folds buf into crc and returns the new crc.
func Update(crc uint8, buf []byte) uint8 {
	for _, v := range buf {
		crc = shift8(crc ^ v)
	}
	return crc
}

// Checksum returns the crc of buf.
func Checksum(buf []byte) uint8 {
	return Update(0, buf)
}

// ChecksumTrace returns the crc of buf, reporting the accumulator state to t.
// A nil t is the same as Checksum.
func ChecksumTrace(buf []byte, t Trace) uint8 {
	if t == nil {
		return Checksum(buf)
	}
	var crc uint8
	for i, v := range buf {
		crc ^= v
		t(Xor, i, v, crc)
		crc = shift8(crc)
		t(Shift, i, v, crc)
	}
	return crc
}

//-----------------------------------------------------------------------------
