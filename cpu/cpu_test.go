package cpu

import (
	"bytes"
	"testing"

	"github.com/rcornwell/mcore370/channel"
	"github.com/rcornwell/mcore370/decode"
	"github.com/rcornwell/mcore370/event"
	"github.com/rcornwell/mcore370/memory"
	"github.com/rcornwell/mcore370/translate"
)

func newFixture(t *testing.T) *CPU {
	t.Helper()
	mem := memory.New(memory.MaxWords / 4)
	xlate := translate.New()
	ch := channel.New(mem)
	events := &event.Queue{}
	hist := decode.NewHistory(16)
	c := New(mem, xlate, ch, events, hist)
	// Running instructions requires leaving the power-on wait state.
	c.PSW.Wait = false
	c.PSW.ECMode = true
	return c
}

func storeHalf(m *memory.Store, addr uint32, v uint16) {
	word, _ := m.ReadWord(addr&^3, 0)
	if addr&2 == 0 {
		word = (word & 0x0000ffff) | uint32(v)<<16
	} else {
		word = (word & 0xffff0000) | uint32(v)
	}
	m.WriteWord(addr&^3, word, 0)
}

func TestAddRegisterSetsResultAndAdvancesPC(t *testing.T) {
	c := newFixture(t)
	c.Regs[1] = 5
	c.Regs[2] = 7
	storeHalf(c.Mem, 0x100, 0x1a12) // AR R1,R2
	c.PSW.PC = 0x100

	if !c.Step() {
		t.Fatalf("unexpected halt")
	}
	if c.Regs[1] != 12 {
		t.Fatalf("got R1=%d", c.Regs[1])
	}
	if c.PSW.PC != 0x102 {
		t.Fatalf("PC did not advance, got %#x", c.PSW.PC)
	}
}

func TestLoadAndStoreMemory(t *testing.T) {
	c := newFixture(t)
	c.Regs[1] = 0x11223344
	c.Regs[15] = 0x400 // base register
	storeHalf(c.Mem, 0x100, 0x5010) // ST R1,0(,R15)
	storeHalf(c.Mem, 0x102, 0xf000)
	c.PSW.PC = 0x100

	c.Step()
	got, _ := c.Mem.ReadWord(0x400, 0)
	if got != 0x11223344 {
		t.Fatalf("got %#x", got)
	}

	c.Regs[1] = 0
	storeHalf(c.Mem, 0x200, 0x5810) // L R1,0(,R15)
	storeHalf(c.Mem, 0x202, 0xf000)
	c.PSW.PC = 0x200
	c.Step()
	if c.Regs[1] != 0x11223344 {
		t.Fatalf("got R1=%#x", c.Regs[1])
	}
}

func TestBranchOnConditionTaken(t *testing.T) {
	c := newFixture(t)
	c.PSW.CC = 0
	c.Regs[15] = 0x400
	storeHalf(c.Mem, 0x100, 0x4780) // BC 8,0(,R15) -- mask 8 matches CC0
	storeHalf(c.Mem, 0x102, 0xf000)
	c.PSW.PC = 0x100

	c.Step()
	if c.PSW.PC != 0x400 {
		t.Fatalf("expected branch taken, got PC=%#x", c.PSW.PC)
	}
}

func TestBranchOnConditionNotTaken(t *testing.T) {
	c := newFixture(t)
	c.PSW.CC = 1
	c.Regs[15] = 0x400
	storeHalf(c.Mem, 0x100, 0x4780) // mask 8 only matches CC0
	storeHalf(c.Mem, 0x102, 0xf000)
	c.PSW.PC = 0x100

	c.Step()
	if c.PSW.PC != 0x104 {
		t.Fatalf("expected fall-through, got PC=%#x", c.PSW.PC)
	}
}

func TestSVCDeliversInterruptionOnNextStep(t *testing.T) {
	c := newFixture(t)
	storeHalf(c.Mem, 0x100, 0x0a07) // SVC 7
	c.PSW.PC = 0x100
	c.PSW.IRQEnable = true

	c.Step() // executes SVC, latches the interruption
	if !c.svcPending {
		t.Fatalf("expected svc pending")
	}

	c.Step() // delivers it
	word1, _ := c.Mem.ReadWord(addrSVCOld, 0)
	if word1&0xffff != 7 {
		t.Fatalf("expected svc code 7 saved, got %#x", word1)
	}
	if c.svcPending {
		t.Fatalf("expected svc cleared after delivery")
	}
}

func TestLoadPSWInstallsNewStatus(t *testing.T) {
	c := newFixture(t)
	// EC-mode word1 with IRQ enable set, key 0; word2 = target PC.
	c.Mem.WriteWord(0x300, 0x00080000|uint32(irqEnableBit), 0)
	c.Mem.WriteWord(0x304, 0x00001000, 0)
	c.Regs[15] = 0x300 // base register for LPSW operand address
	storeHalf(c.Mem, 0x100, 0x8200) // LPSW 0(,R15)
	storeHalf(c.Mem, 0x102, 0xf000)
	c.PSW.PC = 0x100

	c.Step()
	if c.PSW.PC != 0x1000 {
		t.Fatalf("expected new PC 0x1000, got %#x", c.PSW.PC)
	}
	if !c.PSW.IRQEnable {
		t.Fatalf("expected IRQEnable installed from new PSW")
	}
}

// TestOperandFaultRestartsFaultingInstruction pins spec.md §8 scenario 2:
// a page/addressing fault on operand access must save the faulting
// instruction's own PC as the restart point, not the next instruction's
// PC the way a synchronous arithmetic fault does.
func TestOperandFaultRestartsFaultingInstruction(t *testing.T) {
	c := newFixture(t)
	c.Regs[1] = 0
	c.Regs[15] = c.Mem.Size() // one byte past the end of memory: out of range
	storeHalf(c.Mem, 0x100, 0x5810) // L R1,0(,R15)
	storeHalf(c.Mem, 0x102, 0xf000)
	c.PSW.PC = 0x100

	if !c.Step() {
		t.Fatalf("unexpected halt")
	}
	if c.PSW.PC != 0x100 {
		t.Fatalf("expected PC restored to faulting instruction 0x100, got %#x", c.PSW.PC)
	}
	if c.pendingProgram != FaultAddressing {
		t.Fatalf("expected FaultAddressing pending, got %v", c.pendingProgram)
	}
}

func TestWaitWithNoEnabledSourceHalts(t *testing.T) {
	c := newFixture(t)
	c.PSW.Wait = true
	c.PSW.ExtEnable = false
	c.PSW.IRQEnable = false

	c.Step()
	if !c.Halted() {
		t.Fatalf("expected halted")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := newFixture(t)
	c.Regs[3] = 0xdeadbeef
	c.CRegs[0] = 0x12345678
	c.PSW.PC = 0x4242
	c.PSW.CC = 2

	var buf bytes.Buffer
	if err := c.Snapshot(&buf); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	c2 := newFixture(t)
	if err := c2.Restore(&buf); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if c2.Regs[3] != 0xdeadbeef || c2.CRegs[0] != 0x12345678 {
		t.Fatalf("register state did not round-trip: %+v", c2.Regs)
	}
	if c2.PSW.PC != 0x4242 || c2.PSW.CC != 2 {
		t.Fatalf("PSW did not round-trip: %+v", c2.PSW)
	}
}

const irqEnableBit = 0x02000000
