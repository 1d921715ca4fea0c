/*
 * mcore370 - Virtual to physical address translation and TLB.
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

// Package translate implements the software-walked segment/page table
// translator and its direct-mapped TLB, grounded on the DAT logic of
// rcornwell/S370's emu/cpu.transAddr but generalized to the page/segment
// size and cache-size configuration spec.md leaves open.
package translate

import "github.com/rcornwell/mcore370/memory"

// AMASK masks a virtual or physical address to its 24 architected bits.
const AMASK uint32 = 0x00ffffff

// Kind identifies the purpose of a translation request; write accesses
// check the writable/copy-on-write bit, instruction fetches never set the
// modified bit.
type Kind int

const (
	Instr Kind = iota
	DataRead
	DataWrite
)

// Fault enumerates the translation-level error classes.
type Fault int

const (
	NoFault Fault = iota
	SegmentTranslation
	PageTranslation
	Specification
	Addressing
	ProtectionFault
)

// PageSize / SegSize are the two supported geometries (spec.md §3).
type PageSize uint32

const (
	Page2K PageSize = 2048
	Page4K PageSize = 4096
)

type SegSize uint32

const (
	Seg64K SegSize = 64 * 1024
	Seg1M  SegSize = 1024 * 1024
)

// tlbEntry mirrors a cache row: a tag, a frame, flags, and a back-pointer
// into the page table (as a memory byte address, not a raw guest pointer,
// per spec.md §9 "Pointer graphs to arenas").
type tlbEntry struct {
	valid      bool
	tag        uint32 // (segment<<12 | page) uniquely identifying the mapping
	frame      uint32 // physical frame number
	writable   bool
	referenced bool
	modified   bool
	pteAddr    uint32 // memory address of the PTE, for ref/mod writeback
	pteHigh    bool   // PTE occupies the high half-word of pteAddr's word
}

// Config bundles the parameters a kernel-mode control-register reload
// installs (spec.md §3 "Page tables").
type Config struct {
	PageSize  PageSize
	SegSize   SegSize
	CacheSize int // 16..32, direct-mapped (Open Question, spec.md §9)
	SegAddr   uint32
	SegLen    uint32 // number of segment-table entries present
}

// Translator owns the TLB and current table-base configuration. It holds
// no references to a CPU; memory access is performed through the Store
// passed to Translate so the translator can be unit-tested in isolation.
type Translator struct {
	cfg     Config
	enabled bool
	cache   []tlbEntry
}

// New creates a Translator with a default 32-entry cache and 4K/1M
// geometry; Reconfigure changes this from control-register state.
func New() *Translator {
	t := &Translator{cfg: Config{PageSize: Page4K, SegSize: Seg1M, CacheSize: 32}}
	t.cache = make([]tlbEntry, t.cfg.CacheSize)
	return t
}

// Reconfigure installs new table geometry and flushes the cache (loading
// a new segment-table address always flushes, per spec.md §3).
func (t *Translator) Reconfigure(cfg Config) {
	if cfg.CacheSize < 16 {
		cfg.CacheSize = 16
	}
	if cfg.CacheSize > 32 {
		cfg.CacheSize = 32
	}
	t.cfg = cfg
	t.cache = make([]tlbEntry, cfg.CacheSize)
}

// SetEnabled toggles dynamic address translation.
func (t *Translator) SetEnabled(on bool) { t.enabled = on }

// Enabled reports whether translation is active.
func (t *Translator) Enabled() bool { return t.enabled }

// Flush invalidates every cache entry: cache-clear instruction, segment
// table address load, or process switch.
func (t *Translator) Flush() {
	for i := range t.cache {
		t.cache[i] = tlbEntry{}
	}
}

func (t *Translator) pageShift() uint32 {
	if t.cfg.PageSize == Page2K {
		return 11
	}
	return 12
}

func (t *Translator) segShift() uint32 {
	if t.cfg.SegSize == Seg64K {
		return 16
	}
	return 20
}

func (t *Translator) slot(tag uint32) int {
	return int(tag) % len(t.cache)
}

// Translate maps a virtual address to a physical one, faulting in the
// order: segment validity, page-table length, page-table entry validity,
// must-be-zero bits, protection -- matching spec.md §4.2's ordering
// contract exactly.
func (t *Translator) Translate(m *memory.Store, va uint32, kind Kind) (uint32, Fault) {
	addr := va & AMASK
	if !t.enabled {
		if !m.InRange(addr) {
			return 0, Addressing
		}
		return addr, NoFault
	}

	pageShift := t.pageShift()
	segShift := t.segShift()
	seg := addr >> segShift
	page := (addr >> pageShift) & pageIndexMask(segShift, pageShift)
	offMask := (uint32(1) << pageShift) - 1
	tag := (seg << 12) | page

	if e := &t.cache[t.slot(tag)]; e.valid && e.tag == tag {
		if kind == DataWrite && !e.writable {
			return 0, PageTranslation // copy-on-write tie-break, see below
		}
		if kind == DataWrite && !e.modified {
			e.modified = true
			_ = m.WriteWordMask(e.pteAddr, modBitValue(e.pteHigh), modBitMask(e.pteHigh), 0)
		}
		pa := (e.frame << pageShift) | (addr & offMask)
		if !m.InRange(pa) {
			return 0, Addressing
		}
		return pa, NoFault
	}

	// Miss: walk the segment table.
	if seg >= t.cfg.SegLen {
		return 0, SegmentTranslation
	}
	steAddr := (t.cfg.SegAddr + seg*4) & AMASK
	ste, f := m.ReadWord(steAddr, 0)
	if f != memory.NoFault {
		return 0, Addressing
	}
	if ste&0x1 != 0 { // invalid bit
		return 0, SegmentTranslation
	}
	pageTableLen := (ste >> 28) + 1
	if (page >> 4) >= pageTableLen {
		return 0, PageTranslation
	}

	pteTableAddr := ste & 0x00fffffe
	pteAddr := (pteTableAddr + (page << 1)) & AMASK
	pteWord, f := m.ReadWord(pteAddr&^3, 0)
	if f != memory.NoFault {
		return 0, Addressing
	}
	high := (pteAddr & 2) != 0
	var pte uint32
	if high {
		pte = pteWord & 0xffff
	} else {
		pte = (pteWord >> 16) & 0xffff
	}

	const pteMBZ uint32 = 0x0009
	const pteAvail uint32 = 0x0004
	const pteWritable uint32 = 0x0002 // architecturally the protect bit is inverted: 0 = writable

	if pte&pteAvail != 0 {
		return 0, PageTranslation
	}
	if pte&pteMBZ != 0 {
		return 0, Specification
	}

	frame := pte >> 4
	writable := pte&pteWritable == 0
	if kind == DataWrite && !writable {
		// Present-but-read-only page: the same fault as absent, the
		// kernel tells them apart by re-walking and inspecting the
		// writable bit itself (spec.md §4.2 tie-break).
		return 0, PageTranslation
	}

	e := tlbEntry{
		valid:      true,
		tag:        tag,
		frame:      frame,
		writable:   writable,
		referenced: true,
		modified:   kind == DataWrite,
		pteAddr:    pteAddr &^ 3,
		pteHigh:    high,
	}
	t.cache[t.slot(tag)] = e
	if e.modified {
		_ = m.WriteWordMask(e.pteAddr, modBitValue(high), modBitMask(high), 0)
	}

	pa := (frame << pageShift) | (addr & offMask)
	if !m.InRange(pa) {
		return 0, Addressing
	}
	return pa, NoFault
}

func pageIndexMask(segShift, pageShift uint32) uint32 {
	return (uint32(1) << (segShift - pageShift)) - 1
}

// modBitMask/modBitValue locate the architected "modified" bit within the
// half of the word the PTE occupies, so the translator can lazily write
// it back without re-reading the full PTE (spec.md §3 storage-key
// invariant: "any write sets the modified bit").
func modBitMask(high bool) uint32 {
	if high {
		return 0x0001
	}
	return 0x00010000
}

func modBitValue(high bool) uint32 { return modBitMask(high) }
