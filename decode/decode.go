/*
 * mcore370 - Instruction decoder and trace history.
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

// Package decode turns a half-word instruction stream into a generic
// Instruction record and computes operand effective addresses. It knows
// nothing about opcode semantics -- the interpreter core owns dispatch --
// only the three fixed instruction shapes (2, 4, and 6 bytes) and the
// base/index/displacement address arithmetic shared by every format.
package decode

// HalfFetcher supplies the next aligned half-word from the translated
// instruction stream. addr is always half-word aligned; err is non-nil
// only for a translation or addressing fault, in which case Fetch stops
// and returns the partially decoded instruction unusable.
type HalfFetcher func(addr uint32) (uint16, error)

// AddrMask is the 24-bit real/virtual address wraparound applied to every
// effective-address computation.
const AddrMask = 0x00ffffff

// Instruction is the decoder's output: the raw opcode/register nibbles and
// the two raw 16-bit operand half-words, undecoded into base/index/
// displacement until the caller asks (the split differs between RX/RS,
// SI, and SS forms, and only the interpreter knows which applies).
type Instruction struct {
	PC      uint32 // address the opcode half-word was fetched from
	Opcode  uint8
	Reg     uint8  // R1 (high nibble) / R2 (low nibble) for RR forms
	Half1   uint16 // second half-word, present when Length >= 4
	Half2   uint16 // third half-word, present when Length == 6
	Length  int    // 2, 4, or 6
	Raw     [6]byte
}

// R1 and R2 split the reg byte as an RR-format instruction would.
func (i Instruction) R1() uint8 { return (i.Reg >> 4) & 0xf }
func (i Instruction) R2() uint8 { return i.Reg & 0xf }

// Split1 decodes Half1 as an RX/RS-style (base, displacement) half-word:
// the top nibble is the base register number and the low 12 bits a
// displacement.
func (i Instruction) Split1() (reg uint8, disp uint16) {
	reg = uint8(i.Half1>>12) & 0xf
	disp = i.Half1 & 0x0fff
	return
}

// Split2 decodes Half2 the same way, for the second operand of an SS
// instruction.
func (i Instruction) Split2() (reg uint8, disp uint16) {
	reg = uint8(i.Half2>>12) & 0xf
	disp = i.Half2 & 0x0fff
	return
}

// EffectiveAddress sums a base register value (0 if base == 0, per the
// architecture's "register 0 means literal zero" rule), an optional index
// register value, and a 12-bit displacement, wrapping to the 24-bit
// address space.
func EffectiveAddress(base uint8, baseVal uint32, index uint8, indexVal uint32, disp uint16) uint32 {
	var addr uint32
	if base != 0 {
		addr += baseVal
	}
	if index != 0 {
		addr += indexVal
	}
	addr += uint32(disp)
	return addr & AddrMask
}

// Fetch reads one instruction starting at pc. Length is inferred from the
// top two bits of the opcode byte: 00 -> 2 bytes (RR), 01/10 -> 4 bytes
// (RX/RS/SI), 11 -> 6 bytes (SS). fetchHalf is called once per half-word
// consumed, in increasing address order.
func Fetch(pc uint32, fetchHalf HalfFetcher) (Instruction, error) {
	var inst Instruction
	inst.PC = pc

	word, err := fetchHalf(pc)
	if err != nil {
		return inst, err
	}
	inst.Opcode = uint8(word >> 8)
	inst.Reg = uint8(word)
	inst.Raw[0], inst.Raw[1] = inst.Opcode, inst.Reg
	inst.Length = 2

	if inst.Opcode&0xc0 == 0 {
		return inst, nil
	}

	inst.Length = 4
	half1, err := fetchHalf(pc + 2)
	if err != nil {
		return inst, err
	}
	inst.Half1 = half1
	inst.Raw[2], inst.Raw[3] = byte(half1>>8), byte(half1)

	if inst.Opcode&0xc0 != 0xc0 {
		return inst, nil
	}

	inst.Length = 6
	half2, err := fetchHalf(pc + 4)
	if err != nil {
		return inst, err
	}
	inst.Half2 = half2
	inst.Raw[4], inst.Raw[5] = byte(half2>>8), byte(half2)
	return inst, nil
}

// Trace is one entry in the decode history ring buffer: the program
// counter the instruction was fetched from, its opcode, and the raw
// operand bytes actually consumed (Length-2 of them).
type Trace struct {
	PC     uint32
	Opcode uint8
	Operands [4]byte
}

// History is a bounded ring buffer of recently decoded instructions. It
// exists purely for inspection -- recording into it never alters
// architectural state, and a full buffer silently overwrites its oldest
// entry.
type History struct {
	entries []Trace
	next    int
	count   int
}

// NewHistory allocates a history buffer holding up to size entries. A
// size <= 0 disables recording: Record becomes a no-op and Entries is
// always empty.
func NewHistory(size int) *History {
	if size < 0 {
		size = 0
	}
	return &History{entries: make([]Trace, size)}
}

// Record appends inst's trace to the buffer, overwriting the oldest entry
// once full. It is a no-op on a zero-size history.
func (h *History) Record(inst Instruction) {
	if len(h.entries) == 0 {
		return
	}
	t := Trace{PC: inst.PC, Opcode: inst.Opcode}
	copy(t.Operands[:], inst.Raw[2:])
	h.entries[h.next] = t
	h.next = (h.next + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
}

// Entries returns the recorded traces in oldest-to-newest order.
func (h *History) Entries() []Trace {
	if h.count == 0 {
		return nil
	}
	out := make([]Trace, h.count)
	if h.count < len(h.entries) {
		copy(out, h.entries[:h.count])
		return out
	}
	start := h.next
	for i := 0; i < h.count; i++ {
		out[i] = h.entries[(start+i)%len(h.entries)]
	}
	return out
}

// Len reports how many traces are currently recorded.
func (h *History) Len() int { return h.count }
