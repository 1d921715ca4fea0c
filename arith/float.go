/*
 * mcore370 - Base-16 and base-2 floating point arithmetic.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package arith

// Radix selects the exponent base: base-16 for the legacy mainframe
// float, base-2 for the Ridge-family variant (spec.md §4.3).
type Radix int

const (
	Radix16 Radix = 16
	Radix2  Radix = 2
)

// Float is an unpacked sign/exponent/mantissa floating-point value. The
// mantissa is left-justified in a 56-bit field (bit 55 is the top of the
// leading digit) regardless of single/double precision; Pack64/Pack32
// truncate to the architected wire width.
type Float struct {
	Sign     bool // true = negative
	Exponent int  // biased by 64, base-16; unbiased, base-2 when Radix2
	Mantissa uint64
	Radix    Radix
}

const (
	bias16     = 64
	mantBits   = 56
	guardShift = mantBits - 4 // room for one hex guard digit during align
)

// digitWidth returns the radix's shift-per-normalisation-step: 4 bits for
// hex float, 1 bit for binary float.
func (r Radix) digitWidth() uint {
	if r == Radix16 {
		return 4
	}
	return 1
}

// leadMask is the bit (or nibble) that must be set for a normalised
// mantissa: the top bit for base-2, the top 4-bit digit for base-16.
func (f Float) leadMask() uint64 {
	if f.Radix == Radix16 {
		return 0xf << (mantBits - 4)
	}
	return 1 << (mantBits - 1)
}

// normalize canonicalises the mantissa to the 56-bit working field:
// first shifting right (incrementing the exponent) while it overflows
// the field, then shifting left (decrementing the exponent) while the
// leading digit is zero, exactly mirroring the hardware's pre-store
// normalisation step. A zero mantissa normalises to exponent 0.
func normalize(f *Float) {
	if f.Mantissa == 0 {
		f.Exponent = 0
		f.Sign = false
		return
	}
	w := f.Radix.digitWidth()
	for f.Mantissa>>mantBits != 0 {
		f.Mantissa >>= w
		f.Exponent++
	}
	for f.Mantissa&f.leadMask() == 0 {
		f.Mantissa <<= w
		f.Exponent--
	}
}

// UnpackLong decodes a 64-bit long-format float word into a Float.
func UnpackLong(bits64 uint64, radix Radix) Float {
	f := Float{Radix: radix}
	f.Sign = bits64&0x8000000000000000 != 0
	exp := int((bits64 >> 56) & 0x7f)
	if radix == Radix16 {
		f.Exponent = exp
	} else {
		f.Exponent = exp - 64
	}
	f.Mantissa = (bits64 & 0x00ffffffffffffff) << 0
	return f
}

// PackLong re-encodes a Float into the 64-bit long format.
func PackLong(f Float) uint64 {
	exp := f.Exponent
	if f.Radix != Radix16 {
		exp += 64
	}
	var out uint64
	if f.Sign {
		out |= 0x8000000000000000
	}
	out |= uint64(exp&0x7f) << 56
	out |= f.Mantissa & 0x00ffffffffffffff
	return out
}

// UnpackShort decodes a 32-bit short-format float word, widening the
// 24-bit mantissa into the common 56-bit working field.
func UnpackShort(bits32 uint32, radix Radix) Float {
	f := Float{Radix: radix}
	f.Sign = bits32&0x80000000 != 0
	exp := int((bits32 >> 24) & 0x7f)
	if radix == Radix16 {
		f.Exponent = exp
	} else {
		f.Exponent = exp - 64
	}
	f.Mantissa = uint64(bits32&0x00ffffff) << 32
	return f
}

// PackShort narrows a Float back to the 32-bit short format, dropping the
// low 32 bits of the working mantissa (truncation, no rounding, matching
// the teacher's FP store-short behavior).
func PackShort(f Float) uint32 {
	exp := f.Exponent
	if f.Radix != Radix16 {
		exp += 64
	}
	var out uint32
	if f.Sign {
		out |= 0x80000000
	}
	out |= uint32(exp&0x7f) << 24
	out |= uint32(f.Mantissa>>32) & 0x00ffffff
	return out
}

// Neg flips a Float's sign (LCER/LCDR), canonicalising a zero mantissa
// to the positive sign.
func Neg(f Float) Float {
	if f.Mantissa != 0 {
		f.Sign = !f.Sign
	} else {
		f.Sign = false
	}
	return f
}

func maxExp(radix Radix) int {
	if radix == Radix16 {
		return 127
	}
	return 63
}

// checkRange renormalises and tests for exponent overflow/underflow and
// significance loss, returning the Exception (if any) the caller should
// compare against the program mask.
func checkRange(f *Float, sigMaskEnabled, underMaskEnabled bool) Exception {
	normalize(f)
	if f.Mantissa == 0 {
		if sigMaskEnabled {
			return Significance
		}
		return NoException
	}
	if f.Exponent > maxExp(f.Radix) {
		return ExponentOverflow
	}
	if f.Exponent < 0 {
		if underMaskEnabled {
			return ExponentUnderflow
		}
		f.Mantissa = 0
		f.Exponent = 0
		f.Sign = false
	}
	return NoException
}

// Add implements floating add/subtract: align by exponent difference,
// signed-add the mantissas, renormalise to the leading non-zero digit.
// subtract flips b's sign first.
func Add(a, b Float, subtract, sigMaskEnabled, underMaskEnabled bool) (Float, Exception) {
	if subtract {
		b.Sign = !b.Sign
	}
	w := a.Radix.digitWidth()
	diff := a.Exponent - b.Exponent
	result := a
	result.Exponent = a.Exponent
	av, bv := a.Mantissa, b.Mantissa
	if diff > 0 {
		bv = shiftRightDigits(bv, uint(diff), w)
	} else if diff < 0 {
		av = shiftRightDigits(av, uint(-diff), w)
		result.Exponent = b.Exponent
	}

	sa, sb := int64(av), int64(bv)
	if a.Sign {
		sa = -sa
	}
	if b.Sign {
		sb = -sb
	}
	sum := sa + sb

	result.Sign = sum < 0
	if sum < 0 {
		sum = -sum
	}
	result.Mantissa = uint64(sum)
	exc := checkRange(&result, sigMaskEnabled, underMaskEnabled)
	return result, exc
}

// shiftRightDigits shifts v right by n digit-widths (saturating at zero
// once everything has shifted out), used to align mantissas before add.
func shiftRightDigits(v uint64, n, width uint) uint64 {
	shift := n * width
	if shift >= 64 {
		return 0
	}
	return v >> shift
}

// Compare implements floating compare: align and subtract, sign/zero
// test of the difference. It never raises an exception.
func Compare(a, b Float) uint8 {
	diff, _ := Add(a, b, true, false, true)
	switch {
	case diff.Mantissa == 0:
		return 0
	case diff.Sign:
		return 1
	default:
		return 2
	}
}

// Multiply implements floating multiply the way the hardware's
// bit-serial multiplier does it: shift a one-digit guard into both
// mantissas, then run a sequential shift-and-add multiply that adds
// the multiplier into the accumulator a bit at a time and shifts the
// accumulator right in step, so the 112-bit product is never actually
// materialised -- only the top bits the working field keeps ever sit
// in a register. The guard digit leaves the raw product one digit
// wide of the true scale, so the exponent is pre-biased by one digit
// and checkRange's renormalisation pass folds the compensating shift
// back in.
func Multiply(a, b Float, sigMaskEnabled, underMaskEnabled bool) (Float, Exception) {
	normalize(&a)
	normalize(&b)
	result := Float{Radix: a.Radix, Sign: a.Sign != b.Sign}
	if a.Radix == Radix16 {
		result.Exponent = a.Exponent + b.Exponent - bias16 - 1
	} else {
		result.Exponent = a.Exponent + b.Exponent - 1
	}

	w := a.Radix.digitWidth()
	v1 := a.Mantissa << w
	v2 := b.Mantissa << w
	var product uint64
	for i := uint(0); i < mantBits+w; i++ {
		if v1&1 != 0 {
			product += v2
		}
		v1 >>= 1
		product >>= 1
	}
	result.Mantissa = product

	exc := checkRange(&result, sigMaskEnabled, underMaskEnabled)
	return result, exc
}

// Divide implements floating divide as a restoring bit-serial divider:
// guard-shift both operands by one digit, bump the exponent if that
// leaves the dividend larger than the divisor (keeping the quotient in
// the working field's range), then shift the remainder left one bit
// per step, subtracting the divisor (via its two's-complement) and
// keeping the subtraction only when it did not borrow. A zero divisor
// raises FloatDivide unconditionally (not maskable).
func Divide(a, b Float, sigMaskEnabled, underMaskEnabled bool) (Float, Exception) {
	normalize(&a)
	normalize(&b)
	if b.Mantissa == 0 {
		return Float{Radix: a.Radix}, FloatDivide
	}
	result := Float{Radix: a.Radix, Sign: a.Sign != b.Sign}
	if a.Radix == Radix16 {
		result.Exponent = a.Exponent - b.Exponent + bias16
	} else {
		result.Exponent = a.Exponent - b.Exponent
	}

	w := a.Radix.digitWidth()
	fieldBits := mantBits + w
	fieldMask := uint64(1)<<fieldBits - 1
	carryBit := uint64(1) << fieldBits

	v1 := a.Mantissa << w
	v2 := b.Mantissa << w
	if v1 > v2 {
		v1 >>= w
		result.Exponent++
	}
	negV2 := fieldMask - v2 + 1

	var quotient uint64
	for i := 0; i < mantBits+1; i++ {
		v1 <<= 1
		temp := v1 + negV2
		quotient <<= 1
		if temp&carryBit != 0 {
			v1 = temp
			quotient |= 1
		}
		v1 &= fieldMask
	}
	if special := uint64(1)<<(mantBits+1) - 1; quotient == special {
		quotient++
	}
	quotient >>= 1
	result.Mantissa = quotient

	exc := checkRange(&result, sigMaskEnabled, underMaskEnabled)
	return result, exc
}

// Fix converts a Float to a 32-bit integer. The value a normalised Float
// represents is Mantissa*2^(4*Exponent-312) for base-16 (a 56-bit
// fraction scaled by 16^(Exponent-64)) and Mantissa*2^(Exponent-56) for
// base-2; Fix inverts that scaling and reports FixedOverflow if the
// magnitude does not fit in 32 bits.
func Fix(f Float) (int32, Exception) {
	normalize(&f)
	var shift int
	if f.Radix == Radix16 {
		shift = 4*f.Exponent - 312
	} else {
		shift = f.Exponent - 56
	}
	var mag uint64
	switch {
	case shift <= -64 || shift >= 64:
		mag = 0
	case shift >= 0:
		mag = f.Mantissa << uint(shift)
	default:
		mag = f.Mantissa >> uint(-shift)
	}
	if mag > 1<<31 || (mag == 1<<31 && !f.Sign) {
		return 0, FixedOverflow
	}
	if f.Sign {
		return -int32(mag), NoException
	}
	return int32(mag), NoException
}

// FloatFromInt converts a 32-bit integer to a normalised Float. It seeds
// the unnormalised mantissa with the magnitude itself and picks the
// exponent that makes Fix's scaling an identity (78 for base-16, 56 for
// base-2), then lets normalize walk the leading digit into place --
// each normalisation step rescales the mantissa and compensates the
// exponent together, so the represented value never changes.
func FloatFromInt(v int32, radix Radix) Float {
	f := Float{Radix: radix}
	mag := uint64(v)
	if v < 0 {
		f.Sign = true
		mag = uint64(-v)
	}
	if mag == 0 {
		return f
	}
	f.Mantissa = mag
	if radix == Radix16 {
		f.Exponent = 78
	} else {
		f.Exponent = 56
	}
	normalize(&f)
	return f
}
