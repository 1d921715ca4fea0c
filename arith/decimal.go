/*
 * mcore370 - Packed-decimal (BCD) arithmetic primitives.
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

// Packed holds an unpacked decimal operand: up to 31 BCD digits,
// most-significant first, plus its sign. Digit 0 is always the
// most-significant digit; unused leading positions are zero.
type Packed struct {
	Digits   [31]uint8
	Len      int // number of significant digit positions (<=31)
	Positive bool
}

// Unpack decodes a packed-decimal byte string (digits 0x0-0x9 terminated
// by a sign nibble) into a Packed value, following the same backward scan
// as rcornwell/S370's decLoad: the lowest-addressed byte holds the two
// most-significant digits, the highest byte holds the last digit and the
// sign.
func Unpack(raw []byte) (Packed, Exception) {
	var p Packed
	n := len(raw)
	digits := make([]uint8, 0, n*2)
	for _, b := range raw {
		digits = append(digits, b>>4, b&0xf)
	}
	sign := digits[len(digits)-1]
	digits = digits[:len(digits)-1]

	exc := NoException
	for _, d := range digits {
		if d > 0x9 {
			exc = Data
		}
	}
	switch sign {
	case 0xb, 0xd:
		p.Positive = false
	case 0xa, 0xc, 0xe, 0xf:
		p.Positive = true
	default:
		return p, Data
	}

	// Strip to at most 31 significant digits, left-padding with zero.
	if len(digits) > 31 {
		digits = digits[len(digits)-31:]
	}
	p.Len = 31
	copy(p.Digits[31-len(digits):], digits)
	return p, exc
}

// Pack re-encodes a Packed value into a byte string of the given output
// length (bytes), canonicalizing the sign nibble to 0xC (plus) or 0xD
// (minus).
func Pack(p Packed, outLen int) []byte {
	nibbles := make([]uint8, 0, outLen*2)
	nibbles = append(nibbles, p.Digits[31-(outLen*2-1):]...)
	sign := uint8(0xc)
	if !p.Positive {
		sign = 0xd
	}
	nibbles = append(nibbles, sign)
	out := make([]byte, outLen)
	for i := range out {
		out[i] = (nibbles[i*2] << 4) | nibbles[i*2+1]
	}
	return out
}

// isZero reports whether every significant digit is zero.
func (p Packed) isZero() bool {
	for _, d := range p.Digits {
		if d != 0 {
			return false
		}
	}
	return true
}

// decAdd adds value2 into value1 digit-by-digit over the low `digits`
// positions, with nibble-overflow correction (+6 when a digit exceeds 9),
// exactly as rcornwell/S370.decAdd; addsub selects ten's-complement
// subtraction. carry is the carry-out of the operand's most-significant
// digit (the architected overflow signal), not of the full 31-digit
// scratch field.
func decAdd(addsub bool, digits int, value1, value2 *[31]uint8) (carry uint8, zero bool) {
	zero = true
	if addsub {
		carry = 1
	}
	start := 31 - digits
	for i := 30; i >= start; i-- {
		digit := value1[i]
		if addsub {
			digit = 9 - digit
		}
		acc := value2[i] + digit + carry
		if acc > 9 {
			acc += 6
		}
		value1[i] = acc & 0xf
		carry = (acc >> 4) & 0xf
		if value1[i] != 0 {
			zero = false
		}
	}
	return carry, zero
}

// decRecomp ten's-complements value in place over the low `digits`
// positions (used to re-sign a subtract result when the trial
// subtraction produced a borrow).
func decRecomp(digits int, value *[31]uint8) bool {
	zero := true
	carry := uint8(1)
	start := 31 - digits
	for i := 30; i >= start; i-- {
		acc := (9 - value[i]) + carry
		if acc > 9 {
			acc += 6
		}
		value[i] = acc & 0xf
		carry = (acc >> 4) & 0xf
		if value[i] != 0 {
			zero = false
		}
	}
	return zero
}

// AddPacked implements AP/SP/ZAP sign/magnitude decimal addition over a
// field of the given digit width (the instruction's length-minus-one
// field, converted to digit count by the caller): if the signs differ,
// ten's-complement subtract and re-complement when no carry occurred; if
// the signs agree, plain decimal add. CC follows the architected table
// (0 zero, 1 negative, 2 positive, 3 overflow); a carry out of the
// field's most-significant digit on a same-sign add sets CC=3 and raises
// DecimalOverflow. A borrow on a differing-sign add is resolved by
// recomplementing and never overflows.
func AddPacked(v1, v2 Packed, digits int) (result Packed, cc uint8, exc Exception) {
	result = v1
	addsub := v1.Positive != v2.Positive
	carry, zero := decAdd(addsub, digits, &result.Digits, &v2.Digits)

	positive := v1.Positive
	overflow := false
	switch {
	case addsub && carry != 0:
		// Ten's-complement subtraction needed no recomplement: the
		// larger-magnitude operand (v2) determines the sign.
		positive = !positive
	case addsub:
		// Borrow occurred: recomplement to recover the true magnitude;
		// v1's original sign stands.
		zero = decRecomp(digits, &result.Digits)
	case carry != 0:
		// Same-sign add carried out of the declared field width.
		overflow = true
	}

	if zero && !overflow {
		positive = true // sign-canonicalisation: any zero result is +0
	}
	result.Positive = positive
	result.Len = v1.Len

	switch {
	case zero:
		cc = 0
	case !positive:
		cc = 1
	default:
		cc = 2
	}
	if overflow {
		cc = 3
		exc = DecimalOverflow
	}
	return result, cc, exc
}

// SubtractPacked implements SP as AddPacked with v2's sign flipped.
func SubtractPacked(v1, v2 Packed, digits int) (result Packed, cc uint8, exc Exception) {
	v2.Positive = !v2.Positive
	return AddPacked(v1, v2, digits)
}

// ComparePacked implements CP: compare magnitude-and-sign, returning the
// same CC convention as AddPacked. CP never raises DecimalOverflow.
func ComparePacked(v1, v2 Packed, digits int) uint8 {
	diff, cc, _ := SubtractPacked(v1, v2, digits)
	if diff.isZero() {
		return 0
	}
	return cc
}

// ZeroAndAdd implements ZAP: the destination becomes a sign-canonicalised
// copy of the source operand.
func ZeroAndAdd(src Packed, digits int) (result Packed, cc uint8, exc Exception) {
	zero := Packed{Positive: true}
	return AddPacked(zero, src, digits)
}

// bcdShiftedDigit reads src's digit at position i as if src had been
// shifted left (towards more-significant positions) by shift decimal
// places; positions that shift in off the least-significant end read as
// zero. Both src and the virtual shifted view stay within the 31-digit
// field -- this is modular-31-digit arithmetic, matching the field the
// architecture actually gives MP/DP to work in.
func bcdShiftedDigit(src [31]uint8, i, shift int) uint8 {
	si := i + shift
	if si > 30 {
		return 0
	}
	return src[si]
}

// bcdAddShifted adds src, shifted left by shift decimal places, into dst
// in place, digit by digit with the same nibble-overflow correction
// decAdd uses. It is MultiplyPacked's long-multiplication step (each
// multiplier digit contributes the multiplicand added in shift times)
// and DividePacked's restore-on-borrow step.
func bcdAddShifted(dst *[31]uint8, src [31]uint8, shift int) {
	carry := uint8(0)
	for i := 30; i >= 0; i-- {
		acc := dst[i] + bcdShiftedDigit(src, i, shift) + carry
		if acc > 9 {
			acc += 6
		}
		dst[i] = acc & 0xf
		carry = (acc >> 4) & 0xf
	}
}

// bcdTrySubShifted subtracts src, shifted left by shift decimal places,
// from dst in place via nines-complement addition -- the same trial
// subtraction rcornwell/S370's opDP performs (cpu_decimal.go's
// `value1[i] + (0x9 - value2[k]) + cy` loop). It returns the carry out
// of digit 0: 1 means dst was >= the shifted src (the subtraction
// stands), 0 means it borrowed (dst was smaller; the caller must restore
// with bcdAddShifted).
func bcdTrySubShifted(dst *[31]uint8, src [31]uint8, shift int) uint8 {
	carry := uint8(1)
	for i := 30; i >= 0; i-- {
		acc := dst[i] + (9 - bcdShiftedDigit(src, i, shift)) + carry
		if acc > 9 {
			acc += 6
		}
		dst[i] = acc & 0xf
		carry = (acc >> 4) & 0xf
	}
	return carry
}

// MultiplyPacked implements MP. op2 must have fewer significant digits
// than op1, and op1's excess high-order digits must be zero (else Data).
// The magnitudes are multiplied digit by digit -- for each multiplier
// digit, the multiplicand is added into the accumulator that many times
// at the matching decimal shift -- exactly the repeated decAdd-style
// step rcornwell/S370's decMulstep/opMP performs (cpu_decimal.go:357-430),
// never converting either operand to a native integer: a field's 31
// digits can hold far more precision than fits in a uint64.
func MultiplyPacked(op1, op2 Packed, op1SigDigits, op2SigDigits int) (result Packed, exc Exception) {
	if op2SigDigits >= op1SigDigits {
		return Packed{}, Data
	}
	headroom := op1SigDigits - op2SigDigits
	for i := 31 - op1SigDigits; i < 31-headroom; i++ {
		if op1.Digits[i] != 0 {
			return Packed{}, Data
		}
	}

	var acc [31]uint8
	for j := 30; j >= 31-op2SigDigits; j-- {
		shift := 30 - j
		for d := op2.Digits[j]; d > 0; d-- {
			bcdAddShifted(&acc, op1.Digits, shift)
		}
	}

	result.Len = 31
	result.Digits = acc
	result.Positive = op1.Positive == op2.Positive
	if result.isZero() {
		result.Positive = true
	}
	return result, NoException
}

// DividePacked implements DP: op1 (dividend) is divided by op2 (divisor)
// producing a quotient and remainder packed back into op1's field, one
// quotient digit per decimal position via restoring division -- try the
// shifted trial subtraction, and if it borrows, restore and move on,
// exactly as rcornwell/S370's opDP (cpu_decimal.go:433-528) does with its
// `restor` scratch array. As with MultiplyPacked, this stays digit by
// digit throughout: a 31-digit dividend can exceed a uint64's range, so
// no stage ever collapses the field into a native integer. A divisor of
// more than 7 significant digits is rejected with Specification; the
// dividend's length is not limited (see DESIGN.md).
func DividePacked(op1, op2 Packed, op2SigDigits int) (quotient, remainder Packed, exc Exception) {
	if op2SigDigits > 7 {
		return Packed{}, Packed{}, Specification
	}
	if op2.isZero() {
		return Packed{}, Packed{}, DecimalDivide
	}

	rem := op1.Digits
	maxQuotientDigits := 31 - op2SigDigits
	var qdigits [31]uint8
	for pos := 31 - maxQuotientDigits; pos < 31; pos++ {
		shift := 30 - pos
		var q uint8
		for {
			if bcdTrySubShifted(&rem, op2.Digits, shift) == 0 {
				bcdAddShifted(&rem, op2.Digits, shift)
				break
			}
			q++
			if q > 9 {
				return Packed{}, Packed{}, DecimalDivide
			}
		}
		qdigits[pos] = q
	}

	quotient.Len = 31
	quotient.Digits = qdigits
	remainder.Len = 31
	remainder.Digits = rem
	quotient.Positive = op1.Positive == op2.Positive
	remainder.Positive = op1.Positive
	if quotient.isZero() {
		quotient.Positive = true
	}
	if remainder.isZero() {
		remainder.Positive = true
	}
	return quotient, remainder, NoException
}
