/*
 * mcore370 - Flat opcode dispatch table and instruction handlers.
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

package cpu

import (
	"github.com/rcornwell/mcore370/arith"
	"github.com/rcornwell/mcore370/decode"
	"github.com/rcornwell/mcore370/memory"
	"github.com/rcornwell/mcore370/translate"
)

// handler implements step (1)-(6) of spec.md §4.5 for one opcode: it
// validates its own register numbers, gathers operands, invokes the
// arithmetic unit, writes back, sets the condition code, and reports a
// ProgramFault (FaultNone for success). PC has already been advanced
// past the instruction by Step before the handler runs; branch handlers
// overwrite it again to change control flow.
type handler func(c *CPU, inst decode.Instruction) ProgramFault

// Opcodes, grounded on the teacher's op.Op* constants.
const (
	opBALR = 0x05
	opBCR  = 0x07
	opBAL  = 0x45
	opBC   = 0x47
	opSVC  = 0x0a
	opLR   = 0x18
	opCR   = 0x19
	opAR   = 0x1a
	opSR   = 0x1b
	opLA   = 0x41
	opST   = 0x50
	opL    = 0x58
	opC    = 0x59
	opA    = 0x5a
	opS    = 0x5b
	opSSM  = 0x80
	opLPSW = 0x82
)

var opcodeTable = map[uint8]handler{
	opBALR: execBALR,
	opBCR:  execBCR,
	opBAL:  execBAL,
	opBC:   execBC,
	opSVC:  execSVC,
	opLR:   execLR,
	opCR:   execCR,
	opAR:   execAR,
	opSR:   execSR,
	opLA:   execLA,
	opST:   execST,
	opL:    execL,
	opC:    execC,
	opA:    execA,
	opS:    execS,
	opSSM:  execSSM,
	opLPSW: execLPSW,
}

// effectiveAddr1 is the address computation used by every RX handler
// below. The index register X2 is the reg byte's low nibble (the same
// position R2 occupies in RR form); the base register B2 and 12-bit
// displacement D2 come from the top nibble and low 12 bits of the second
// half-word. Register 0 in either position contributes nothing (the
// architecture's "literal zero" rule). decode.EffectiveAddress performs
// the same sum; it is written out directly here.
func (c *CPU) effectiveAddr1(inst decode.Instruction) uint32 {
	index := inst.R2()
	base := uint8(inst.Half1>>12) & 0xf
	disp := uint32(inst.Half1 & 0x0fff)
	var addr uint32
	if base != 0 {
		addr += c.Regs[base]
	}
	if index != 0 {
		addr += c.Regs[index]
	}
	addr += disp
	return addr & translate.AMASK
}

func (c *CPU) readWord(addr uint32, write bool) (uint32, ProgramFault) {
	phys := addr
	if c.Xlate.Enabled() {
		kind := translate.DataRead
		if write {
			kind = translate.DataWrite
		}
		p, fault := c.Xlate.Translate(c.Mem, addr, kind)
		if fault != translate.NoFault {
			return 0, translateFaultToProgram(fault)
		}
		phys = p
	}
	v, memFault := c.Mem.ReadWord(phys, c.PSW.Key)
	if memFault != memory.NoFault {
		return 0, FaultAddressing
	}
	return v, FaultNone
}

func (c *CPU) writeWord(addr, value uint32) ProgramFault {
	phys := addr
	if c.Xlate.Enabled() {
		p, fault := c.Xlate.Translate(c.Mem, addr, translate.DataWrite)
		if fault != translate.NoFault {
			return translateFaultToProgram(fault)
		}
		phys = p
	}
	if memFault := c.Mem.WriteWord(phys, value, c.PSW.Key); memFault != memory.NoFault {
		return FaultAddressing
	}
	return FaultNone
}

// --- RR format ---------------------------------------------------------

func execLR(c *CPU, inst decode.Instruction) ProgramFault {
	c.Regs[inst.R1()] = c.Regs[inst.R2()]
	return FaultNone
}

func execAR(c *CPU, inst decode.Instruction) ProgramFault {
	r1 := inst.R1()
	result, overflow := arith.AddSigned32(int32(c.Regs[r1]), int32(c.Regs[inst.R2()]))
	c.Regs[r1] = uint32(result)
	c.PSW.CC = arith.CompareSigned32(result, 0)
	if overflow {
		return c.arithFault(arith.FixedOverflow, FaultFixedOverflow)
	}
	return FaultNone
}

func execSR(c *CPU, inst decode.Instruction) ProgramFault {
	r1 := inst.R1()
	result, overflow := arith.SubSigned32(int32(c.Regs[r1]), int32(c.Regs[inst.R2()]))
	c.Regs[r1] = uint32(result)
	c.PSW.CC = arith.CompareSigned32(result, 0)
	if overflow {
		return c.arithFault(arith.FixedOverflow, FaultFixedOverflow)
	}
	return FaultNone
}

func execCR(c *CPU, inst decode.Instruction) ProgramFault {
	c.PSW.CC = arith.CompareSigned32(int32(c.Regs[inst.R1()]), int32(c.Regs[inst.R2()]))
	return FaultNone
}

func execBALR(c *CPU, inst decode.Instruction) ProgramFault {
	link := c.PSW.PC // Step already advanced PC past this instruction
	r2 := inst.R2()
	c.Regs[inst.R1()] = link
	if r2 != 0 {
		c.PSW.PC = c.Regs[r2] & translate.AMASK
	}
	return FaultNone
}

func execBCR(c *CPU, inst decode.Instruction) ProgramFault {
	mask := inst.R1()
	r2 := inst.R2()
	if r2 != 0 && branchTaken(mask, c.PSW.CC) {
		c.PSW.PC = c.Regs[r2] & translate.AMASK
	}
	return FaultNone
}

func execSVC(c *CPU, inst decode.Instruction) ProgramFault {
	c.raiseSVC(inst.Reg)
	return FaultNone
}

// --- RX format -----------------------------------------------------------

func execLA(c *CPU, inst decode.Instruction) ProgramFault {
	c.Regs[inst.R1()] = c.effectiveAddr1(inst)
	return FaultNone
}

func execL(c *CPU, inst decode.Instruction) ProgramFault {
	v, fault := c.readWord(c.effectiveAddr1(inst), false)
	if fault != FaultNone {
		return fault
	}
	c.Regs[inst.R1()] = v
	return FaultNone
}

func execST(c *CPU, inst decode.Instruction) ProgramFault {
	return c.writeWord(c.effectiveAddr1(inst), c.Regs[inst.R1()])
}

func execA(c *CPU, inst decode.Instruction) ProgramFault {
	v, fault := c.readWord(c.effectiveAddr1(inst), false)
	if fault != FaultNone {
		return fault
	}
	r1 := inst.R1()
	result, overflow := arith.AddSigned32(int32(c.Regs[r1]), int32(v))
	c.Regs[r1] = uint32(result)
	c.PSW.CC = arith.CompareSigned32(result, 0)
	if overflow {
		return c.arithFault(arith.FixedOverflow, FaultFixedOverflow)
	}
	return FaultNone
}

func execS(c *CPU, inst decode.Instruction) ProgramFault {
	v, fault := c.readWord(c.effectiveAddr1(inst), false)
	if fault != FaultNone {
		return fault
	}
	r1 := inst.R1()
	result, overflow := arith.SubSigned32(int32(c.Regs[r1]), int32(v))
	c.Regs[r1] = uint32(result)
	c.PSW.CC = arith.CompareSigned32(result, 0)
	if overflow {
		return c.arithFault(arith.FixedOverflow, FaultFixedOverflow)
	}
	return FaultNone
}

func execC(c *CPU, inst decode.Instruction) ProgramFault {
	v, fault := c.readWord(c.effectiveAddr1(inst), false)
	if fault != FaultNone {
		return fault
	}
	c.PSW.CC = arith.CompareSigned32(int32(c.Regs[inst.R1()]), int32(v))
	return FaultNone
}

func execBAL(c *CPU, inst decode.Instruction) ProgramFault {
	link := c.PSW.PC
	target := c.effectiveAddr1(inst)
	c.Regs[inst.R1()] = link
	c.PSW.PC = target
	return FaultNone
}

func execBC(c *CPU, inst decode.Instruction) ProgramFault {
	mask := inst.R1()
	if branchTaken(mask, c.PSW.CC) {
		c.PSW.PC = c.effectiveAddr1(inst)
	}
	return FaultNone
}

// --- S / SI format: SSM, LPSW ------------------------------------------

func execSSM(c *CPU, inst decode.Instruction) ProgramFault {
	v, fault := c.readWord(c.effectiveAddr1(inst)&^3, false)
	if fault != FaultNone {
		return fault
	}
	mask := uint8(v >> 24)
	c.PSW.IRQEnable = mask&0x02 != 0
	c.PSW.ExtEnable = mask&0x01 != 0
	c.PSW.DATEnable = mask&0x04 != 0
	c.Xlate.SetEnabled(c.PSW.DATEnable)
	return FaultNone
}

func execLPSW(c *CPU, inst decode.Instruction) ProgramFault {
	addr := c.effectiveAddr1(inst) &^ 7
	if addr&1 != 0 {
		return FaultSpecification
	}
	word1, fault := c.readWord(addr, false)
	if fault != FaultNone {
		return fault
	}
	word2, fault := c.readWord(addr+4, false)
	if fault != FaultNone {
		return fault
	}
	c.LoadPSW(word1, word2)
	return FaultNone
}

// branchTaken reports whether the 4-bit mask's bit for the current
// condition code is set: bit 8 selects CC0, 4 selects CC1, 2 selects
// CC2, 1 selects CC3.
func branchTaken(mask, cc uint8) bool {
	return mask&(0x8>>cc) != 0
}

// arithFault maps an arith.Exception to the program-check code it raises
// when the corresponding program-mask bit is set, and suppresses the
// trap (returning FaultNone) when it is masked off, per spec.md §4.3.
func (c *CPU) arithFault(exc arith.Exception, fault ProgramFault) ProgramFault {
	switch exc {
	case arith.FixedOverflow:
		if c.PSW.ProgMask&0x8 == 0 {
			return FaultNone
		}
	case arith.DecimalOverflow:
		if c.PSW.ProgMask&0x4 == 0 {
			return FaultNone
		}
	case arith.ExponentUnderflow:
		if c.PSW.ProgMask&0x2 == 0 {
			return FaultNone
		}
	case arith.Significance:
		if c.PSW.ProgMask&0x1 == 0 {
			return FaultNone
		}
	}
	return fault
}

// translateFaultToProgram maps a translator fault class to the
// program-check code the interpreter traps with, per spec.md §4.2/§4.6.
func translateFaultToProgram(fault translate.Fault) ProgramFault {
	switch fault {
	case translate.SegmentTranslation:
		return FaultSegment
	case translate.PageTranslation:
		return FaultPage
	case translate.Specification:
		return FaultSpecification
	case translate.Addressing:
		return FaultAddressing
	case translate.ProtectionFault:
		return FaultProtection
	default:
		return FaultAddressing
	}
}
