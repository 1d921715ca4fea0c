package arith

import "testing"

func digits31(sig string) [31]uint8 {
	var d [31]uint8
	off := 31 - len(sig)
	for i, c := range sig {
		d[off+i] = uint8(c - '0')
	}
	return d
}

func TestPackedAddWithOverflow(t *testing.T) {
	// Scenario 3 from spec.md §8: 99999 + 1 = 100000, CC=3, overflow trap
	// conditional on mask.
	op1 := Packed{Digits: digits31("99999"), Positive: true, Len: 31}
	op2 := Packed{Digits: digits31("1"), Positive: true, Len: 31}
	result, cc, exc := AddPacked(op1, op2, 5)
	if cc != 3 || exc != DecimalOverflow {
		t.Fatalf("got cc=%d exc=%v", cc, exc)
	}
	if result.Digits != digits31("00000") {
		t.Fatalf("got %v", result.Digits)
	}
}

func TestPackedAddZeroCanonicalisation(t *testing.T) {
	pos0 := Packed{Positive: true}
	neg0 := Packed{Positive: false}
	result, cc, _ := AddPacked(pos0, neg0, 5)
	if !result.Positive {
		t.Fatalf("expected canonical +0, got negative")
	}
	if cc != 0 {
		t.Fatalf("expected cc=0, got %d", cc)
	}
}

func TestPackedSubtractDifferentSigns(t *testing.T) {
	a := Packed{Digits: digits31("5"), Positive: true}
	b := Packed{Digits: digits31("7"), Positive: true}
	result, cc, _ := SubtractPacked(a, b, 1)
	if result.Positive {
		t.Fatalf("expected negative result")
	}
	if result.Digits != digits31("2") {
		t.Fatalf("got %v", result.Digits)
	}
	if cc != 1 {
		t.Fatalf("expected cc=1, got %d", cc)
	}
}

func TestPackedCompare(t *testing.T) {
	a := Packed{Digits: digits31("10"), Positive: true}
	b := Packed{Digits: digits31("10"), Positive: true}
	if cc := ComparePacked(a, b, 2); cc != 0 {
		t.Fatalf("expected equal, got %d", cc)
	}
	c := Packed{Digits: digits31("9"), Positive: true}
	if cc := ComparePacked(c, a, 2); cc != 1 {
		t.Fatalf("expected less, got %d", cc)
	}
	if cc := ComparePacked(a, c, 2); cc != 2 {
		t.Fatalf("expected greater, got %d", cc)
	}
}

func TestUnpackPackRoundTrip(t *testing.T) {
	raw := []byte{0x12, 0x34, 0x5c} // +12345
	p, exc := Unpack(raw)
	if exc != NoException {
		t.Fatalf("unexpected exception: %v", exc)
	}
	if !p.Positive {
		t.Fatalf("expected positive")
	}
	back := Pack(p, 3)
	if back[0] != 0x12 || back[1] != 0x34 || back[2] != 0x5c {
		t.Fatalf("round trip mismatch: % x", back)
	}
}

func TestUnpackRejectsBadSign(t *testing.T) {
	raw := []byte{0x12, 0x31} // sign nibble 0x1 is invalid
	if _, exc := Unpack(raw); exc != Data {
		t.Fatalf("expected Data exception, got %v", exc)
	}
}

func TestMultiplyPacked(t *testing.T) {
	op1 := Packed{Digits: digits31("00012"), Positive: true}
	op2 := Packed{Digits: digits31("3"), Positive: false}
	result, exc := MultiplyPacked(op1, op2, 3, 1)
	if exc != NoException {
		t.Fatalf("unexpected exc: %v", exc)
	}
	if result.Positive {
		t.Fatalf("expected negative product")
	}
	if result.Digits != digits31("36") {
		t.Fatalf("got %v", result.Digits)
	}
}

func TestMultiplyRejectsExcessHighDigits(t *testing.T) {
	op1 := Packed{Digits: digits31("912"), Positive: true}
	op2 := Packed{Digits: digits31("3"), Positive: true}
	if _, exc := MultiplyPacked(op1, op2, 3, 1); exc != Data {
		t.Fatalf("expected Data, got %v", exc)
	}
}

func TestDividePacked(t *testing.T) {
	op1 := Packed{Digits: digits31("00017"), Positive: true}
	op2 := Packed{Digits: digits31("5"), Positive: true}
	q, r, exc := DividePacked(op1, op2, 1)
	if exc != NoException {
		t.Fatalf("unexpected exc: %v", exc)
	}
	if q.Digits != digits31("3") || r.Digits != digits31("2") {
		t.Fatalf("got q=%v r=%v", q.Digits, r.Digits)
	}
}

// TestMultiplyPackedBeyondUint64Range pins a regression where
// MultiplyPacked accumulated a field's full digit string into a native
// uint64 before multiplying: a 21-significant-digit operand (well within
// the field's 31 digits) is already too wide for uint64 (max ~19-20
// digits) on the conversion alone, let alone after multiplying, and the
// old code silently wrapped instead of producing the correct BCD result.
func TestMultiplyPackedBeyondUint64Range(t *testing.T) {
	op1 := Packed{Digits: digits31("0111111111111111111111"), Positive: true}
	op2 := Packed{Digits: digits31("1"), Positive: true}
	result, exc := MultiplyPacked(op1, op2, 22, 1)
	if exc != NoException {
		t.Fatalf("unexpected exc: %v", exc)
	}
	if result.Digits != digits31("111111111111111111111") {
		t.Fatalf("got %v", result.Digits)
	}
}

// TestDividePackedBeyondUint64Range is DividePacked's counterpart: a
// 21-digit dividend that overflows a native uint64 accumulator must
// still divide correctly, digit by digit.
func TestDividePackedBeyondUint64Range(t *testing.T) {
	op1 := Packed{Digits: digits31("111111111111111111111"), Positive: true}
	op2 := Packed{Digits: digits31("1"), Positive: true}
	q, r, exc := DividePacked(op1, op2, 1)
	if exc != NoException {
		t.Fatalf("unexpected exc: %v", exc)
	}
	if q.Digits != digits31("111111111111111111111") || r.Digits != digits31("0") {
		t.Fatalf("got q=%v r=%v", q.Digits, r.Digits)
	}
}

func TestDivideByZero(t *testing.T) {
	op1 := Packed{Digits: digits31("5"), Positive: true}
	op2 := Packed{Positive: true}
	if _, _, exc := DividePacked(op1, op2, 1); exc != DecimalDivide {
		t.Fatalf("expected DecimalDivide, got %v", exc)
	}
}
