package translate

import (
	"testing"

	"github.com/rcornwell/mcore370/memory"
)

// buildMapping installs a one-segment, one-page-table mapping: segment 0
// points at a page table at pageTableAddr with 16 entries (length field
// 0 means "1 entry group of 16"), and page page maps to physical frame
// frame, with the protect bit (0x2) set when writable is false.
func buildMapping(t *testing.T, m *memory.Store, segAddr, pageTableAddr uint32, page, frame uint32, writable bool) {
	t.Helper()
	ste := pageTableAddr & 0x00fffffe // length field 0 = 16 entries valid
	if err := m.WriteWord(segAddr, ste, 0); err != memory.NoFault {
		t.Fatalf("ste write: %v", err)
	}
	pteAddr := pageTableAddr + page*2
	word := pteAddr &^ 3
	high := (pteAddr & 2) != 0
	pte := frame << 4
	if !writable {
		pte |= 0x0002
	}
	existing, _ := m.ReadWord(word, 0)
	if high {
		existing = (existing &^ 0xffff) | pte
	} else {
		existing = (existing &^ 0xffff0000) | (pte << 16)
	}
	if err := m.WriteWord(word, existing, 0); err != memory.NoFault {
		t.Fatalf("pte write: %v", err)
	}
}

func newFixture(t *testing.T) (*memory.Store, *Translator) {
	t.Helper()
	m := memory.New(memory.MaxWords / 4)
	tr := New()
	tr.Reconfigure(Config{PageSize: Page4K, SegSize: Seg1M, CacheSize: 32, SegAddr: 0x10000, SegLen: 16})
	tr.SetEnabled(true)
	return m, tr
}

func TestTranslateDisabledIsIdentity(t *testing.T) {
	m, tr := newFixture(t)
	tr.SetEnabled(false)
	pa, f := tr.Translate(m, 0x4000, DataRead)
	if f != NoFault || pa != 0x4000 {
		t.Fatalf("got %#x, %v", pa, f)
	}
}

func TestTranslateMissThenHit(t *testing.T) {
	m, tr := newFixture(t)
	buildMapping(t, m, 0x10000, 0x20000, 0, 5, true)
	pa, f := tr.Translate(m, 0x123, DataRead)
	if f != NoFault {
		t.Fatalf("miss walk faulted: %v", f)
	}
	if want := (uint32(5) << 12) | 0x123; pa != want {
		t.Fatalf("got %#x want %#x", pa, want)
	}
	// Second lookup should hit the cache and agree with a fresh walk.
	pa2, f2 := tr.Translate(m, 0x123, DataRead)
	if f2 != NoFault || pa2 != pa {
		t.Fatalf("cached lookup diverged: %#x %v", pa2, f2)
	}
}

func TestSegmentTranslationFault(t *testing.T) {
	m, tr := newFixture(t)
	// With 64K segments, 0x00f00000 is segment 240: way beyond SegLen.
	tr.Reconfigure(Config{PageSize: Page4K, SegSize: Seg64K, CacheSize: 32, SegAddr: 0x10000, SegLen: 16})
	_, f := tr.Translate(m, 0x00f00000, DataRead)
	if f != SegmentTranslation {
		t.Fatalf("expected SegmentTranslation, got %v", f)
	}
}

func TestWriteToReadOnlyPageFaultsAsPageTranslation(t *testing.T) {
	m, tr := newFixture(t)
	buildMapping(t, m, 0x10000, 0x20000, 0, 5, false)
	_, f := tr.Translate(m, 0x10, DataWrite)
	if f != PageTranslation {
		t.Fatalf("expected PageTranslation on COW write, got %v", f)
	}
}

// TestCacheCoherenceRequiresFlush documents scenario 4 from spec.md §8:
// rewriting a PTE without flushing the cache leaves the old mapping in
// effect until an explicit flush.
func TestCacheCoherenceRequiresFlush(t *testing.T) {
	m, tr := newFixture(t)
	buildMapping(t, m, 0x10000, 0x20000, 0, 5, true)
	pa1, _ := tr.Translate(m, 0x10, DataRead)

	buildMapping(t, m, 0x10000, 0x20000, 0, 9, true)
	pa2, _ := tr.Translate(m, 0x10, DataRead)
	if pa2 != pa1 {
		t.Fatalf("expected stale cached mapping %#x, got %#x", pa1, pa2)
	}

	tr.Flush()
	pa3, f := tr.Translate(m, 0x10, DataRead)
	if f != NoFault {
		t.Fatalf("post-flush walk faulted: %v", f)
	}
	if want := (uint32(9) << 12) | 0x10; pa3 != want {
		t.Fatalf("expected new mapping %#x, got %#x", want, pa3)
	}
}
