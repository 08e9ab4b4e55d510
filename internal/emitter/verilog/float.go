package verilog

import (
	"fmt"
	"math"
	"strings"
)

// packFloat encodes f in a sign, exponent, mantissa bit string with nx
// exponent and nm mantissa bits, rounding to nearest even.
func packFloat(f float64, nx, nm int) string {
	sign := "0"
	if math.Signbit(f) {
		sign = "1"
	}
	ones := strings.Repeat("1", nx)
	switch {
	case math.IsNaN(f):
		return "0" + ones + "1" + strings.Repeat("0", nm-1)
	case math.IsInf(f, 0):
		return sign + ones + strings.Repeat("0", nm)
	case f == 0:
		return sign + strings.Repeat("0", nx+nm)
	}

	frac, e2 := math.Frexp(math.Abs(f))
	// frac is in [0.5, 1), so the 53 bit integer mantissa has bit 52 set.
	m53 := uint64(math.Ldexp(frac, 53))
	bias := 1<<(nx-1) - 1
	be := e2 - 1 + bias

	var mant string
	if be > 0 {
		frac52 := m53 & (1<<52 - 1)
		if nm >= 52 {
			mant = fmt.Sprintf("%052b", frac52) + strings.Repeat("0", nm-52)
		} else {
			m := roundShift(frac52, uint(52-nm))
			if m == 1<<uint(nm) {
				m = 0
				be++
			}
			mant = fmt.Sprintf("%0*b", nm, m)
		}
	} else {
		// Subnormal in the target format.
		shift := 52 - nm + 1 - be
		be = 0
		switch {
		case shift >= 64:
			return sign + strings.Repeat("0", nx+nm)
		case shift <= 0:
			// Wide mantissas hold every bit of m53.
			bits := fmt.Sprintf("%b", m53) + strings.Repeat("0", -shift)
			mant = strings.Repeat("0", nm-len(bits)) + bits
		default:
			m := roundShift(m53, uint(shift))
			if nm < 64 && m == 1<<uint(nm) {
				m = 0
				be = 1
			}
			mant = fmt.Sprintf("%0*b", nm, m)
		}
	}
	if be >= 1<<nx-1 {
		return sign + ones + strings.Repeat("0", nm)
	}
	return sign + fmt.Sprintf("%0*b", nx, be) + mant
}

func roundShift(v uint64, shift uint) uint64 {
	if shift == 0 {
		return v
	}
	m := v >> shift
	rem := v & (1<<shift - 1)
	half := uint64(1) << (shift - 1)
	if rem > half || (rem == half && m&1 == 1) {
		m++
	}
	return m
}
