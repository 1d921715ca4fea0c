/*
 * mcore370 - Flat word-addressable memory store with storage keys.
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

// Package memory implements the flat word-addressed backing store, its
// per-frame storage key byte, and byte/half-word accessors built in terms
// of word accessors.
package memory

const (
	// FrameSize is the number of bytes covered by one storage-key byte.
	FrameSize = 2048

	// MinWords / MaxWords bound the configurable capacity, in 32-bit words.
	MinWords = 16 * 1024 / 4
	MaxWords = 4 * 1024 * 1024 / 4

	// Key byte layout.
	KeyMask  uint8 = 0xf0 // 4-bit storage-protection key
	KeyFetch uint8 = 0x08 // fetch-protect bit
	KeyRef   uint8 = 0x04 // referenced bit
	KeyMod   uint8 = 0x02 // modified bit
)

// Fault enumerates the memory-level error classes a Store accessor can
// raise; the caller (translator / interpreter) maps these onto the
// architectural trap codes.
type Fault int

const (
	NoFault Fault = iota
	Addressing
	Protection
)

// Store is an owned, flat word-addressable memory with one key byte per
// 2048-byte frame. There is no package-level mutable state: every CPU owns
// its own Store.
type Store struct {
	words []uint32
	key   []uint8
	size  uint32 // size in bytes
}

// New allocates a Store of the given size in words, clamped to
// [MinWords, MaxWords].
func New(words int) *Store {
	if words < MinWords {
		words = MinWords
	}
	if words > MaxWords {
		words = MaxWords
	}
	return &Store{
		words: make([]uint32, words),
		key:   make([]uint8, (words*4+FrameSize-1)/FrameSize),
		size:  uint32(words * 4),
	}
}

// Size returns the configured size in bytes.
func (m *Store) Size() uint32 { return m.size }

// InRange reports whether a byte address is within the store.
func (m *Store) InRange(addr uint32) bool { return addr < m.size }

func (m *Store) frame(addr uint32) int { return int(addr / FrameSize) }

// checkKey validates addr's frame against the current active key. A zero
// active key always succeeds (key-0 programs may access any frame).
func (m *Store) checkKey(addr uint32, activeKey uint8, write bool) Fault {
	if !m.InRange(addr) {
		return Addressing
	}
	if activeKey == 0 {
		return NoFault
	}
	frameKey := (m.key[m.frame(addr)] & KeyMask) >> 4
	if frameKey != 0 && frameKey != activeKey {
		return Protection
	}
	return NoFault
}

func (m *Store) markRead(addr uint32)  { m.key[m.frame(addr)] |= KeyRef }
func (m *Store) markWrite(addr uint32) { m.key[m.frame(addr)] |= KeyRef | KeyMod }

// ReadWord reads the word containing addr (addr is word-aligned by caller
// convention; byte/half accessors mask the low bits themselves).
func (m *Store) ReadWord(addr uint32, key uint8) (uint32, Fault) {
	if f := m.checkKey(addr, key, false); f != NoFault {
		return 0, f
	}
	m.markRead(addr)
	return m.words[addr/4], NoFault
}

// WriteWord stores a full word at addr.
func (m *Store) WriteWord(addr, data uint32, key uint8) Fault {
	if f := m.checkKey(addr, key, true); f != NoFault {
		return f
	}
	m.markWrite(addr)
	m.words[addr/4] = data
	return NoFault
}

// WriteWordMask stores data into addr under a bitmask, preserving bits
// outside mask.
func (m *Store) WriteWordMask(addr, data, mask uint32, key uint8) Fault {
	if f := m.checkKey(addr, key, true); f != NoFault {
		return f
	}
	m.markWrite(addr)
	w := addr / 4
	m.words[w] = (m.words[w] &^ mask) | (data & mask)
	return NoFault
}

// ReadHalf reads a 16-bit half-word; it never crosses a word boundary
// (the translator is responsible for splitting accesses that straddle a
// word, per spec. 4.1).
func (m *Store) ReadHalf(addr uint32, key uint8) (uint32, Fault) {
	word, f := m.ReadWord(addr&^3, key)
	if f != NoFault {
		return 0, f
	}
	shift := 16 - 16*((addr>>1)&1)
	return (word >> shift) & 0xffff, NoFault
}

// WriteHalf stores a 16-bit half-word.
func (m *Store) WriteHalf(addr, data uint32, key uint8) Fault {
	shift := 16 - 16*((addr>>1)&1)
	return m.WriteWordMask(addr&^3, data<<shift, 0xffff<<shift, key)
}

// ReadByte reads a single byte.
func (m *Store) ReadByte(addr uint32, key uint8) (uint32, Fault) {
	word, f := m.ReadWord(addr&^3, key)
	if f != NoFault {
		return 0, f
	}
	shift := 24 - 8*(addr&3)
	return (word >> shift) & 0xff, NoFault
}

// WriteByte stores a single byte.
func (m *Store) WriteByte(addr, data uint32, key uint8) Fault {
	shift := 24 - 8*(addr&3)
	return m.WriteWordMask(addr&^3, data<<shift, 0xff<<shift, key)
}

// Key returns the raw key byte for addr's frame.
func (m *Store) Key(addr uint32) uint8 {
	if !m.InRange(addr) {
		return 0
	}
	return m.key[m.frame(addr)]
}

// SetKey overwrites the key byte for addr's frame (storage-key setting
// instruction); the fetch/ref/mod bits are left as-is.
func (m *Store) SetKey(addr uint32, key uint8) {
	if !m.InRange(addr) {
		return
	}
	frame := m.frame(addr)
	m.key[frame] = (m.key[frame] &^ KeyMask) | (key & KeyMask)
}

// ResetRefMod clears the referenced and modified bits for addr's frame,
// used by "insert storage key extended" style instructions.
func (m *Store) ResetRefMod(addr uint32) {
	if !m.InRange(addr) {
		return
	}
	m.key[m.frame(addr)] &^= KeyRef | KeyMod
}

// LoadImage copies data into the store starting at byte offset addr,
// synthesizing word writes; used by the memory-image loader (§6).
func (m *Store) LoadImage(addr uint32, data []byte) bool {
	for i, b := range data {
		if m.WriteByte(addr+uint32(i), uint32(b), 0) != NoFault {
			return false
		}
	}
	return true
}
