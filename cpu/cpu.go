/*
 * mcore370 - Interpreter core: PSW, dispatch loop, trap delivery.
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

// Package cpu implements the single-threaded interpreter core: register
// files, PSW state for both basic-control and extended-control layouts,
// a flat opcode dispatch table, and the trap/interrupt priority scheme
// of spec.md §4.6. It holds every other subsystem (memory.Store,
// translate.Translator, channel.Unit, event.Queue, decode.History) as
// fields rather than package globals; the memory.Store is the same one
// the channel.Unit was created with. There is exactly one mutator of
// architectural state, per spec.md §5.
package cpu

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rcornwell/mcore370/channel"
	"github.com/rcornwell/mcore370/decode"
	"github.com/rcornwell/mcore370/event"
	"github.com/rcornwell/mcore370/memory"
	"github.com/rcornwell/mcore370/translate"
)

// Low-memory fixed locations, grounded on the teacher's cpudefs.go
// constant block.
const (
	addrExternalOld     uint32 = 0x18
	addrSVCOld          uint32 = 0x20
	addrProgramOld      uint32 = 0x28
	addrMachineCheckOld uint32 = 0x30
	addrIOOld           uint32 = 0x38
	addrCSW             uint32 = 0x40
	addrCAW             uint32 = 0x48
	addrExternalNew     uint32 = 0x58
	addrSVCNew          uint32 = 0x60
	addrProgramNew      uint32 = 0x68
	addrMachineCheckNew uint32 = 0x70
	addrIONew           uint32 = 0x78

	// PSW enable bits (extended-control first byte).
	pswExternalEnable uint32 = 0x01000000
	pswIRQEnable      uint32 = 0x02000000
	pswDATEnable      uint32 = 0x04000000

	// PSW system-state bits (second byte of either layout).
	pswECMode   uint8 = 0x08
	pswWait     uint8 = 0x02
	pswProblem  uint8 = 0x01
	pswMCheck   uint8 = 0x04
)

// Interruption identifies a pending trap/interrupt source. Values are
// ordered so the zero value never matches a real source and so the
// priority table in pending() can be written as a straight-line scan.
type Interruption int

const (
	noInterrupt Interruption = iota
	MachineCheck
	ProgramCheck
	SupervisorCall
	ClockComparator
	IntervalTimer
	ExternalSignal
	IOInterrupt
)

// ProgramFault enumerates the program-check interruption codes, grounded
// on cpudefs.go's irc* constants.
type ProgramFault uint16

const (
	FaultNone           ProgramFault = 0
	FaultOperation      ProgramFault = 0x0001
	FaultPrivilege      ProgramFault = 0x0002
	FaultExecute        ProgramFault = 0x0003
	FaultProtection     ProgramFault = 0x0004
	FaultAddressing     ProgramFault = 0x0005
	FaultSpecification  ProgramFault = 0x0006
	FaultData           ProgramFault = 0x0007
	FaultFixedOverflow  ProgramFault = 0x0008
	FaultFixedDivide    ProgramFault = 0x0009
	FaultDecimalOverflow ProgramFault = 0x000a
	FaultDecimalDivide  ProgramFault = 0x000b
	FaultExponentOver   ProgramFault = 0x000c
	FaultExponentUnder  ProgramFault = 0x000d
	FaultSignificance   ProgramFault = 0x000e
	FaultFloatDivide    ProgramFault = 0x000f
	FaultSegment        ProgramFault = 0x0010
	FaultPage           ProgramFault = 0x0011
)

// PSW is the live program status: everything storePSW/loadPSW move to
// and from the fixed low-memory slots.
type PSW struct {
	ECMode    bool
	Wait      bool
	Problem   bool
	ExtEnable bool
	IRQEnable bool
	DATEnable bool
	Key       uint8
	CC        uint8
	ProgMask  uint8
	SysMask   uint16 // basic-control channel-class interrupt mask
	PC        uint32
}

// CPU owns every piece of architectural and device state for one
// machine instance. There is no package-level mutable state anywhere in
// this module; every field a running machine needs lives here.
type CPU struct {
	Regs   [16]uint32
	FPRegs [4]uint64 // FP register pairs 0,2,4,6, each holding a long float's 64 bits
	CRegs  [16]uint32

	PSW PSW

	Mem    *memory.Store
	Xlate  *translate.Translator
	Chan   *channel.Unit
	Events *event.Queue
	Hist   *decode.History

	ilc uint8 // instruction-length code of the instruction in flight

	pendingProgram ProgramFault
	pendingExt     Interruption // one of ClockComparator/IntervalTimer/ExternalSignal, or noInterrupt
	pendingSVC     uint8
	svcPending     bool
	machineCheck   bool

	halted bool
}

// New creates a CPU wired to the given shared subsystems. Reset leaves
// the PSW stopped with translation disabled, per a machine at power-on.
func New(mem *memory.Store, xlate *translate.Translator, ch *channel.Unit, events *event.Queue, hist *decode.History) *CPU {
	c := &CPU{Mem: mem, Xlate: xlate, Chan: ch, Events: events, Hist: hist}
	c.PSW.Wait = true
	return c
}

// Halted reports whether the interpreter reported "halted" to the outer
// scheduler: a wait state from which no enabled source could ever
// arrive (spec.md §4.6).
func (c *CPU) Halted() bool { return c.halted }

// postExternal marks src pending; src must be one of the three external
// sub-sources. Multiple pending sources keep the highest-priority one,
// matching the within-external ordering of spec.md §4.6.
func (c *CPU) postExternal(src Interruption) {
	switch {
	case c.pendingExt == noInterrupt:
		c.pendingExt = src
	case src == ClockComparator:
		c.pendingExt = src
	case src == IntervalTimer && c.pendingExt == ExternalSignal:
		c.pendingExt = src
	}
}

// PostClockComparator, PostIntervalTimer, and PostExternalSignal let the
// timer and console models raise their respective external sources
// without reaching into CPU internals.
func (c *CPU) PostClockComparator() { c.postExternal(ClockComparator) }
func (c *CPU) PostIntervalTimer()   { c.postExternal(IntervalTimer) }
func (c *CPU) PostExternalSignal()  { c.postExternal(ExternalSignal) }

// pending returns the highest-priority deliverable interruption given
// current enable state, or noInterrupt if nothing can be delivered now.
func (c *CPU) pending() Interruption {
	if c.machineCheck {
		return MachineCheck
	}
	if c.pendingProgram != FaultNone {
		return ProgramCheck
	}
	if c.svcPending {
		return SupervisorCall
	}
	if c.pendingExt != noInterrupt && c.PSW.ExtEnable {
		return c.pendingExt
	}
	if c.Chan.IRQPending() && c.PSW.IRQEnable {
		return IOInterrupt
	}
	return noInterrupt
}

// canEverInterrupt reports whether any source could become pending in
// the future given the live enable bits -- used to decide wait-state
// "halted" per spec.md §4.6.
func (c *CPU) canEverInterrupt() bool {
	if c.PSW.ExtEnable || c.PSW.IRQEnable {
		return true
	}
	return false // machine-check is always enabled but never self-arms from wait
}

// Step executes exactly one instruction, or delivers one pending
// interruption if one outranks normal execution. It returns false when
// the machine is halted and the caller should stop calling Step.
func (c *CPU) Step() bool {
	if src := c.pending(); src != noInterrupt {
		c.deliver(src)
		return !c.halted
	}
	if c.PSW.Wait {
		if !c.canEverInterrupt() {
			c.halted = true
		}
		return !c.halted
	}

	pc := c.PSW.PC
	if pc&1 != 0 {
		// An odd instruction address installed by a PSW load faults on
		// the attempt to resume from it.
		c.raiseProgramCheck(FaultSpecification, 0)
		return true
	}
	inst, err := decode.Fetch(pc, c.fetchHalf)
	if err != nil {
		// c.PSW.PC is still pc here -- the instruction never fetched, so
		// the saved status already restarts it.
		c.raiseProgramCheck(FaultAddressing, 1)
		return true
	}
	if c.Hist != nil {
		c.Hist.Record(inst)
	}
	c.ilc = instLengthCode(inst.Length)

	handler, ok := opcodeTable[inst.Opcode]
	if !ok {
		c.raiseProgramCheck(FaultOperation, c.ilc)
		return true
	}

	nextPC := pc + uint32(inst.Length)
	c.PSW.PC = nextPC
	if fault := handler(c, inst); fault != FaultNone {
		if isRestartFault(fault) {
			// A page/addressing fault on operand access never completed
			// the instruction's effects: the saved status must restart
			// it from pc, not resume at nextPC (spec.md §4.5).
			c.PSW.PC = pc
		}
		c.raiseProgramCheck(fault, c.ilc)
	}
	return true
}

// isRestartFault reports whether fault is a page/addressing-class fault
// raised while translating or accessing an operand, as opposed to a
// synchronous fault (fixed-point/decimal/float overflow or divide) that
// is computed from operands already fetched -- the instruction's effects
// up to the trap point stand, and it correctly resumes at the following
// instruction rather than restarting itself.
func isRestartFault(fault ProgramFault) bool {
	switch fault {
	case FaultAddressing, FaultSegment, FaultPage, FaultProtection, FaultSpecification:
		return true
	default:
		return false
	}
}

func instLengthCode(length int) uint8 {
	switch length {
	case 2:
		return 1
	case 4:
		return 2
	default:
		return 3
	}
}

// fetchHalf adapts the translator + memory pair to decode.HalfFetcher,
// using instruction-fetch key checking and the CPU's current DAT mode.
func (c *CPU) fetchHalf(addr uint32) (uint16, error) {
	phys := addr
	if c.Xlate.Enabled() {
		var fault translate.Fault
		phys, fault = c.Xlate.Translate(c.Mem, addr, translate.Instr)
		if fault != translate.NoFault {
			return 0, fmt.Errorf("translate fault %d", fault)
		}
	}
	word, memFault := c.Mem.ReadHalf(phys, c.PSW.Key)
	if memFault != memory.NoFault {
		return 0, fmt.Errorf("memory fault %d", memFault)
	}
	return uint16(word), nil
}

// raiseProgramCheck latches a program-check fault for delivery on the
// next Step call. ilc records the instruction-length code the saved
// status should carry.
func (c *CPU) raiseProgramCheck(fault ProgramFault, ilc uint8) {
	c.pendingProgram = fault
	c.ilc = ilc
}

// raiseSVC latches a supervisor-call interruption with its code.
func (c *CPU) raiseSVC(code uint8) {
	c.svcPending = true
	c.pendingSVC = code
}

// deliver performs the five-step sequence of spec.md §4.6 for src.
func (c *CPU) deliver(src Interruption) {
	var oldAddr, newAddr uint32
	var code uint16

	switch src {
	case MachineCheck:
		oldAddr, newAddr = addrMachineCheckOld, addrMachineCheckNew
		c.machineCheck = false
	case ProgramCheck:
		oldAddr, newAddr = addrProgramOld, addrProgramNew
		code = uint16(c.pendingProgram)
		c.pendingProgram = FaultNone
	case SupervisorCall:
		oldAddr, newAddr = addrSVCOld, addrSVCNew
		code = uint16(c.pendingSVC)
		c.svcPending = false
	case ClockComparator, IntervalTimer, ExternalSignal:
		oldAddr, newAddr = addrExternalOld, addrExternalNew
		c.pendingExt = noInterrupt
	case IOInterrupt:
		oldAddr, newAddr = addrIOOld, addrIONew
	}

	c.storePSW(oldAddr, code)
	c.loadPSW(newAddr)
}

// storePSW writes the current program status to addr in the
// extended-control layout: word one carries the enable/key/mask bits and
// interruption code, word two the instruction pointer. The basic-control
// layout (used when PSW.ECMode is false) instead packs ILC/CC/mask into
// the high bits of word two, per cpu.go's storePSW in the teacher.
func (c *CPU) storePSW(addr uint32, code uint16) {
	var word1, word2 uint32
	if c.PSW.ECMode {
		word1 = 0x00080000 |
			uint32(c.PSW.Key)<<16 |
			uint32(c.PSW.CC)<<12 |
			uint32(c.PSW.ProgMask)<<8
		if c.PSW.DATEnable {
			word1 |= pswDATEnable
		}
		if c.PSW.IRQEnable {
			word1 |= pswIRQEnable
		}
		word1 |= uint32(code)
		word2 = c.PSW.PC & translate.AMASK
	} else {
		word1 = uint32(c.PSW.SysMask)<<16 | uint32(c.PSW.Key)<<16 | uint32(code)
		word2 = uint32(c.ilc)<<30 | uint32(c.PSW.CC)<<28 | uint32(c.PSW.ProgMask)<<24 | (c.PSW.PC & translate.AMASK)
	}
	if c.PSW.ExtEnable {
		word1 |= pswExternalEnable
	}
	c.Mem.WriteWord(addr, word1, 0)
	c.Mem.WriteWord(addr+4, word2, 0)
}

// loadPSW reads a new program status from addr, in whichever layout
// word1's EC-mode bit selects, and installs it as live state. A new PC
// with its low bit set is a specification exception on the instruction
// that attempts to resume from it, not at load time (spec.md §4.6).
func (c *CPU) loadPSW(addr uint32) {
	word1, _ := c.Mem.ReadWord(addr, 0)
	word2, _ := c.Mem.ReadWord(addr+4, 0)
	c.installPSW(word1, word2)
}

func (c *CPU) installPSW(word1, word2 uint32) {
	ec := word1&0x00080000 != 0
	c.PSW.ECMode = ec
	c.PSW.ExtEnable = word1&pswExternalEnable != 0
	c.PSW.Wait = word1&0x00020000 != 0
	c.PSW.Problem = word1&0x00010000 != 0 && !ec
	c.PSW.Key = uint8((word1 >> 16) & 0xf0)
	if ec {
		c.PSW.DATEnable = word1&pswDATEnable != 0
		c.PSW.IRQEnable = word1&pswIRQEnable != 0
		c.PSW.CC = uint8((word1 >> 12) & 0x3)
		c.PSW.ProgMask = uint8((word1 >> 8) & 0xf)
		c.PSW.PC = word2 & translate.AMASK
	} else {
		c.PSW.SysMask = uint16((word1 >> 16) & 0xff00)
		c.PSW.CC = uint8((word2 >> 28) & 0x3)
		c.PSW.ProgMask = uint8((word2 >> 24) & 0xf)
		c.PSW.PC = word2 & translate.AMASK
	}
	c.Xlate.SetEnabled(c.PSW.DATEnable)
	c.halted = false
}

// LoadPSW implements the LPSW instruction: install a new status word
// from an 8-byte operand already fetched by the caller.
func (c *CPU) LoadPSW(word1, word2 uint32) {
	c.installPSW(word1, word2)
}

// --- persisted state --------------------------------------------------

// regClass tags a saved register so Restore knows which array to target.
type regClass uint8

const (
	classGeneral regClass = iota
	classFloat
	classControl
)

// Snapshot writes every architectural register and the live PSW to w as
// a sequence of little-endian (class byte, index byte, value uint64)
// triples, followed by the PSW fields. The format carries no version tag
// because the CPU always writes and reads its own current layout.
func (c *CPU) Snapshot(w io.Writer) error {
	write := func(class regClass, idx int, value uint64) error {
		var buf [10]byte
		buf[0] = byte(class)
		buf[1] = byte(idx)
		binary.LittleEndian.PutUint64(buf[2:], value)
		_, err := w.Write(buf[:])
		return err
	}
	for i, v := range c.Regs {
		if err := write(classGeneral, i, uint64(v)); err != nil {
			return err
		}
	}
	for i, v := range c.FPRegs {
		if err := write(classFloat, i, v); err != nil {
			return err
		}
	}
	for i, v := range c.CRegs {
		if err := write(classControl, i, uint64(v)); err != nil {
			return err
		}
	}
	return c.snapshotPSW(w)
}

func (c *CPU) snapshotPSW(w io.Writer) error {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:], c.PSW.PC)
	buf[4] = c.PSW.Key
	buf[5] = c.PSW.CC
	buf[6] = c.PSW.ProgMask
	buf[7] = boolByte(c.PSW.ECMode)
	buf[8] = boolByte(c.PSW.Wait)
	buf[9] = boolByte(c.PSW.Problem)
	buf[10] = boolByte(c.PSW.ExtEnable)
	buf[11] = boolByte(c.PSW.IRQEnable)
	buf[12] = boolByte(c.PSW.DATEnable)
	binary.LittleEndian.PutUint16(buf[14:], c.PSW.SysMask)
	_, err := w.Write(buf[:])
	return err
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Restore replaces all register and PSW state from a stream previously
// written by Snapshot. Partial writes from an instruction that faulted
// mid-execution are never observed here: Snapshot/Restore operate only
// at instruction boundaries, the same suspension points Step honors.
func (c *CPU) Restore(r io.Reader) error {
	var entry [10]byte
	for i := 0; i < len(c.Regs)+len(c.FPRegs)+len(c.CRegs); i++ {
		if _, err := io.ReadFull(r, entry[:]); err != nil {
			return err
		}
		class := regClass(entry[0])
		idx := int(entry[1])
		value := binary.LittleEndian.Uint64(entry[2:])
		switch class {
		case classGeneral:
			if idx >= len(c.Regs) {
				return fmt.Errorf("register index out of range: %d", idx)
			}
			c.Regs[idx] = uint32(value)
		case classFloat:
			if idx >= len(c.FPRegs) {
				return fmt.Errorf("float register index out of range: %d", idx)
			}
			c.FPRegs[idx] = value
		case classControl:
			if idx >= len(c.CRegs) {
				return fmt.Errorf("control register index out of range: %d", idx)
			}
			c.CRegs[idx] = uint32(value)
		default:
			return fmt.Errorf("unknown register class %d", class)
		}
	}
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	c.PSW.PC = binary.LittleEndian.Uint32(buf[0:])
	c.PSW.Key = buf[4]
	c.PSW.CC = buf[5]
	c.PSW.ProgMask = buf[6]
	c.PSW.ECMode = buf[7] != 0
	c.PSW.Wait = buf[8] != 0
	c.PSW.Problem = buf[9] != 0
	c.PSW.ExtEnable = buf[10] != 0
	c.PSW.IRQEnable = buf[11] != 0
	c.PSW.DATEnable = buf[12] != 0
	c.PSW.SysMask = binary.LittleEndian.Uint16(buf[14:])
	c.Xlate.SetEnabled(c.PSW.DATEnable)
	c.halted = false
	return nil
}
