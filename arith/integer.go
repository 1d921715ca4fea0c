/*
 * mcore370 - Integer arithmetic primitives.
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

// Package arith implements the core's integer, packed-decimal and
// floating-point compute primitives. Every operation returns its numeric
// result together with an Exception the caller compares against the
// program mask to decide whether to trap, per spec.md §7.
package arith

import "math"

// Exception is the arithmetic-level trap class an operation can raise.
// The zero value means no exception occurred.
type Exception int

const (
	NoException Exception = iota
	FixedOverflow
	FixedDivide
	DecimalOverflow
	DecimalDivide
	ExponentOverflow
	ExponentUnderflow
	Significance
	FloatDivide
	Data
	Specification
)

// AddSigned32 performs a two's-complement 32-bit add and reports overflow
// when the operand signs agree but the result's sign differs.
func AddSigned32(a, b int32) (result int32, overflow bool) {
	result = a + b
	overflow = (a >= 0) == (b >= 0) && (result >= 0) != (a >= 0)
	return result, overflow
}

// SubSigned32 performs a two's-complement 32-bit subtract with the same
// overflow rule as AddSigned32 applied to (a, -b).
func SubSigned32(a, b int32) (result int32, overflow bool) {
	return AddSigned32(a, -b)
}

// CompareSigned32 returns the condition code for a signed compare: 0 if
// equal, 1 if a < b, 2 if a > b.
func CompareSigned32(a, b int32) uint8 {
	switch {
	case a == b:
		return 0
	case a < b:
		return 1
	default:
		return 2
	}
}

// AddLogical32 performs an unsigned 32-bit add and returns the condition
// code per spec.md §4.3: {0,1,2,3} = {zero+no-carry, non-zero+no-carry,
// zero+carry, non-zero+carry}.
func AddLogical32(a, b uint32) (result uint32, cc uint8) {
	wide := uint64(a) + uint64(b)
	result = uint32(wide)
	carry := wide>>32 != 0
	cc = 0
	if result != 0 {
		cc |= 1
	}
	if carry {
		cc |= 2
	}
	return result, cc
}

// SubLogical32 mirrors AddLogical32 for unsigned subtract; borrow is
// reported as the complement of carry, matching S/370 logical subtract.
func SubLogical32(a, b uint32) (result uint32, cc uint8) {
	return AddLogical32(a, ^b+1)
}

// MulSigned32 returns the full 64-bit signed product split into high and
// low 32-bit halves (register-pair convention). It reports no overflow:
// the pair always holds the whole product.
func MulSigned32(a, b int32) (hi, lo int32) {
	product := int64(a) * int64(b)
	return int32(product >> 32), int32(product)
}

// DivSigned64by32 divides a 64-bit dividend (register pair) by a 32-bit
// divisor. Overflow is reported when the divisor is zero or the quotient
// does not fit in 32 bits.
func DivSigned64by32(dividend int64, divisor int32) (quotient, remainder int32, exc Exception) {
	if divisor == 0 {
		return 0, 0, FixedDivide
	}
	q := dividend / int64(divisor)
	r := dividend % int64(divisor)
	if q > math.MaxInt32 || q < math.MinInt32 {
		return 0, 0, FixedDivide
	}
	return int32(q), int32(r), NoException
}
