package arith

import "testing"

func TestFixFloatIntegerRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 240} {
		for _, radix := range []Radix{Radix16, Radix2} {
			f := FloatFromInt(v, radix)
			got, exc := Fix(f)
			if exc != NoException {
				t.Fatalf("v=%d radix=%d: unexpected exception %v", v, radix, exc)
			}
			if got != v {
				t.Fatalf("v=%d radix=%d: round trip got %d", v, radix, got)
			}
		}
	}
}

func TestAddNegIsZero(t *testing.T) {
	for _, radix := range []Radix{Radix16, Radix2} {
		one := FloatFromInt(1, radix)
		two := FloatFromInt(2, radix)
		half, exc := Divide(one, two, false, true)
		if exc != NoException {
			t.Fatalf("radix=%d: divide 1/2 raised %v", radix, exc)
		}
		threeHalves, exc := Add(one, half, false, false, true)
		if exc != NoException {
			t.Fatalf("radix=%d: add 1+0.5 raised %v", radix, exc)
		}

		values := []Float{FloatFromInt(0, radix), one, FloatFromInt(-1, radix), half, threeHalves, FloatFromInt(240, radix)}
		for _, v := range values {
			sum, exc := Add(v, Neg(v), false, false, true)
			if exc != NoException {
				t.Fatalf("radix=%d: add(x,-x) raised %v", radix, exc)
			}
			if sum.Mantissa != 0 {
				t.Fatalf("radix=%d: add(x,-x) not zero: %+v", radix, sum)
			}
			if sum.Sign {
				t.Fatalf("radix=%d: zero result not canonicalised positive", radix)
			}
		}
	}
}

func TestDivideHalvesAreConsistent(t *testing.T) {
	one := FloatFromInt(1, Radix16)
	two := FloatFromInt(2, Radix16)
	half, exc := Divide(one, two, false, true)
	if exc != NoException {
		t.Fatalf("unexpected exception: %v", exc)
	}
	doubled, exc := Multiply(half, two, false, true)
	if exc != NoException {
		t.Fatalf("unexpected exception: %v", exc)
	}
	got, exc := Fix(doubled)
	if exc != NoException || got != 1 {
		t.Fatalf("expected 1, got %d (exc=%v)", got, exc)
	}
}

func TestDivideByZeroRaisesFloatDivide(t *testing.T) {
	one := FloatFromInt(1, Radix16)
	zero := Float{Radix: Radix16}
	if _, exc := Divide(one, zero, false, true); exc != FloatDivide {
		t.Fatalf("expected FloatDivide, got %v", exc)
	}
}

func TestCompareOrdersByMagnitudeAndSign(t *testing.T) {
	one := FloatFromInt(1, Radix16)
	negOne := FloatFromInt(-1, Radix16)
	two := FloatFromInt(2, Radix16)

	if cc := Compare(one, one); cc != 0 {
		t.Fatalf("expected equal, got %d", cc)
	}
	if cc := Compare(negOne, one); cc != 1 {
		t.Fatalf("expected less, got %d", cc)
	}
	if cc := Compare(two, one); cc != 2 {
		t.Fatalf("expected greater, got %d", cc)
	}
}

func TestMultiplyByZeroNormalisesExponent(t *testing.T) {
	zero := Float{Radix: Radix16, Exponent: 70}
	one := FloatFromInt(1, Radix16)
	result, exc := Multiply(zero, one, false, true)
	if exc != NoException {
		t.Fatalf("unexpected exception: %v", exc)
	}
	if result.Mantissa != 0 || result.Exponent != 0 {
		t.Fatalf("expected canonical zero, got %+v", result)
	}
}

func TestPackUnpackLongRoundTrip(t *testing.T) {
	one := FloatFromInt(-5, Radix16)
	wire := PackLong(one)
	back := UnpackLong(wire, Radix16)
	got, exc := Fix(back)
	if exc != NoException || got != -5 {
		t.Fatalf("round trip through wire format got %d (exc=%v)", got, exc)
	}
}

func TestPackUnpackShortRoundTrip(t *testing.T) {
	v := FloatFromInt(17, Radix16)
	wire := PackShort(v)
	back := UnpackShort(wire, Radix16)
	got, exc := Fix(back)
	if exc != NoException || got != 17 {
		t.Fatalf("short round trip got %d (exc=%v)", got, exc)
	}
}
