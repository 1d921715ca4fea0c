package channel

import (
	"testing"

	"github.com/rcornwell/mcore370/memory"
)

type mockDevice struct {
	startIO   uint8
	startCmds map[uint8]uint8
}

func (d *mockDevice) StartIO() uint8           { return d.startIO }
func (d *mockDevice) StartCmd(cmd uint8) uint8 { return d.startCmds[cmd] }
func (d *mockDevice) HaltIO() uint8            { return 1 }
func (d *mockDevice) InitDev() uint8           { return 0 }
func (d *mockDevice) Shutdown()                {}
func (d *mockDevice) Debug(string) error       { return nil }

func newFixture(t *testing.T) (*memory.Store, *Unit) {
	t.Helper()
	m := memory.New(memory.MaxWords / 4)
	return m, New(m)
}

func TestStartIOImmediateDeviceEnd(t *testing.T) {
	m, u := newFixture(t)
	dev := &mockDevice{startCmds: map[uint8]uint8{CmdSense: StatusChnEnd | StatusDevEnd}}
	u.AddDevice(dev, 0x10)

	m.WriteWord(0x48, 0x200, 0) // CAW -> 0x200
	m.WriteWord(0x200, uint32(CmdSense)<<24|0x300, 0)
	m.WriteWord(0x204, 1, 0) // flags=0, count=1

	cc := u.StartIO(0x10)
	if cc != 1 {
		t.Fatalf("expected cc=1, got %d", cc)
	}
	word2, _ := m.ReadWord(0x44, 0)
	if word2>>16 != uint32(StatusChnEnd|StatusDevEnd)<<8 {
		t.Fatalf("unexpected csw status word: %#x", word2)
	}
}

func TestStartIOBusyReturnsCC2(t *testing.T) {
	_, u := newFixture(t)
	dev := &mockDevice{startIO: StatusBusy}
	u.AddDevice(dev, 0x20)
	if cc := u.StartIO(0x20); cc != 2 {
		t.Fatalf("expected cc=2, got %d", cc)
	}
}

func TestStartIONoDeviceReturnsCC3(t *testing.T) {
	_, u := newFixture(t)
	if cc := u.StartIO(0x99); cc != 3 {
		t.Fatalf("expected cc=3, got %d", cc)
	}
}

func TestChanReadByteStreamsThenEnds(t *testing.T) {
	m, u := newFixture(t)
	dev := &mockDevice{startCmds: map[uint8]uint8{CmdWrite: 0}}
	u.AddDevice(dev, 0x30)

	m.WriteWord(0x48, 0x200, 0)
	m.WriteWord(0x200, uint32(CmdWrite)<<24|0x300, 0)
	m.WriteWord(0x204, 2, 0) // count=2
	m.WriteWord(0x300, 0x11223344, 0)

	if cc := u.StartIO(0x30); cc != 0 {
		t.Fatalf("expected cc=0 (in progress), got %d", cc)
	}

	b1, ok := u.ChanReadByte(0x30)
	if !ok || b1 != 0x11 {
		t.Fatalf("got %#x ok=%v", b1, ok)
	}
	b2, ok := u.ChanReadByte(0x30)
	if !ok || b2 != 0x22 {
		t.Fatalf("got %#x ok=%v", b2, ok)
	}
	if _, ok := u.ChanReadByte(0x30); ok {
		t.Fatalf("expected transfer exhausted")
	}

	u.ChanEnd(0x30, StatusChnEnd|StatusDevEnd)
	if !u.IRQPending() {
		t.Fatalf("expected pending interrupt after ChanEnd")
	}
}

func TestChanWriteByteStoresIntoMemory(t *testing.T) {
	m, u := newFixture(t)
	dev := &mockDevice{startCmds: map[uint8]uint8{CmdRead: 0}}
	u.AddDevice(dev, 0x40)

	m.WriteWord(0x48, 0x200, 0)
	m.WriteWord(0x200, uint32(CmdRead)<<24|0x400, 0)
	m.WriteWord(0x204, 4, 0) // count=4

	if cc := u.StartIO(0x40); cc != 0 {
		t.Fatalf("expected cc=0, got %d", cc)
	}
	for _, b := range []uint8{0xaa, 0xbb, 0xcc, 0xdd} {
		if !u.ChanWriteByte(0x40, b) {
			t.Fatalf("unexpected write failure for byte %#x", b)
		}
	}
	got, _ := m.ReadWord(0x400, 0)
	if got != 0xaabbccdd {
		t.Fatalf("got %#x", got)
	}
}

func TestSetDevAttnRecordsUnsolicitedStatus(t *testing.T) {
	_, u := newFixture(t)
	dev := &mockDevice{}
	u.AddDevice(dev, 0x50)
	u.SetDevAttn(0x50, StatusAttn)
	if !u.IRQPending() {
		t.Fatalf("expected pending interrupt after SetDevAttn")
	}
	if u.devStatus[0x50] != StatusAttn {
		t.Fatalf("expected recorded device status, got %#x", u.devStatus[0x50])
	}
}
