package memory

import "testing"

func TestWordRoundTrip(t *testing.T) {
	m := New(MinWords)
	if f := m.WriteWord(0x100, 0xdeadbeef, 0); f != NoFault {
		t.Fatalf("write: %v", f)
	}
	v, f := m.ReadWord(0x100, 0)
	if f != NoFault || v != 0xdeadbeef {
		t.Fatalf("got %#x, %v", v, f)
	}
}

func TestByteHalfSynthesis(t *testing.T) {
	m := New(MinWords)
	_ = m.WriteWord(0x200, 0x11223344, 0)
	if b, _ := m.ReadByte(0x200, 0); b != 0x11 {
		t.Fatalf("byte0 = %#x", b)
	}
	if b, _ := m.ReadByte(0x203, 0); b != 0x44 {
		t.Fatalf("byte3 = %#x", b)
	}
	if h, _ := m.ReadHalf(0x202, 0); h != 0x3344 {
		t.Fatalf("half1 = %#x", h)
	}
	if f := m.WriteByte(0x200, 0xff, 0); f != NoFault {
		t.Fatalf("write byte: %v", f)
	}
	if v, _ := m.ReadWord(0x200, 0); v != 0xff223344 {
		t.Fatalf("after byte write: %#x", v)
	}
}

func TestAddressingFault(t *testing.T) {
	m := New(MinWords)
	if _, f := m.ReadWord(m.Size(), 0); f != Addressing {
		t.Fatalf("expected Addressing, got %v", f)
	}
}

func TestStorageKeyProtection(t *testing.T) {
	m := New(MinWords)
	m.SetKey(0x800, 3<<4)
	if f := m.WriteWord(0x800, 1, 5); f != Protection {
		t.Fatalf("expected Protection, got %v", f)
	}
	if f := m.WriteWord(0x800, 1, 3); f != NoFault {
		t.Fatalf("expected NoFault with matching key, got %v", f)
	}
	if f := m.WriteWord(0x800, 1, 0); f != NoFault {
		t.Fatalf("expected NoFault with key 0, got %v", f)
	}
}

func TestReferencedModifiedBits(t *testing.T) {
	m := New(MinWords)
	if k := m.Key(0x1000); k&(KeyRef|KeyMod) != 0 {
		t.Fatalf("expected clean key, got %#x", k)
	}
	_, _ = m.ReadWord(0x1000, 0)
	if k := m.Key(0x1000); k&KeyRef == 0 {
		t.Fatalf("expected referenced bit set, got %#x", k)
	}
	_ = m.WriteWord(0x1000, 0, 0)
	if k := m.Key(0x1000); k&KeyMod == 0 {
		t.Fatalf("expected modified bit set, got %#x", k)
	}
}

func TestSizeClamping(t *testing.T) {
	m := New(1)
	if m.Size() != MinWords*4 {
		t.Fatalf("expected clamp to MinWords, got %d", m.Size())
	}
	big := New(MaxWords * 2)
	if big.Size() != MaxWords*4 {
		t.Fatalf("expected clamp to MaxWords, got %d", big.Size())
	}
}
