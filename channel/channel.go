/*
 * mcore370 - Channel interface.
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

// Package channel implements the programmed-I/O channel interface: a
// CCW-chain fetch/execute engine addressed by a 256-entry device table,
// exposing the device-facing streaming calls (ChanReadByte, ChanWriteByte,
// ChanEnd, SetDevAttn) and the CPU-facing kernel instructions (StartIO,
// HaltIO, TestIO, TestChan). Grounded on rcornwell/S370's
// emu/sys_channel/channel.go and emu/device/device.go, trimmed to a
// single subchannel per device address: block-multiplexer fan-out,
// channel-indirect addressing, and telnet-attached unit-record devices
// are peripheral-model concerns out of scope for this core (see
// DESIGN.md).
package channel

import "github.com/rcornwell/mcore370/memory"

// Device is the command interface every attached unit implements.
type Device interface {
	StartIO() uint8           // Start of a command chain.
	StartCmd(cmd uint8) uint8  // Start a single command.
	HaltIO() uint8             // Halt I/O instruction issued.
	InitDev() uint8            // Initialize device.
	Shutdown()                 // Shutdown device, close any open files.
	Debug(option string) error // Enable a named debug option.
}

// Channel command codes (low nibble of the CCW command byte).
const (
	CmdWrite uint8 = 0x1
	CmdRead  uint8 = 0x2
	CmdCTL   uint8 = 0x3
	CmdSense uint8 = 0x4
	CmdTIC   uint8 = 0x8
	CmdRDBWD uint8 = 0xc
)

// Device status/sense bits returned from StartIO, StartCmd, ChanEnd and
// SetDevAttn.
const (
	StatusAttn   uint8 = 0x80
	StatusSMS    uint8 = 0x40
	StatusCtlEnd uint8 = 0x20
	StatusBusy   uint8 = 0x10
	StatusChnEnd uint8 = 0x08
	StatusDevEnd uint8 = 0x04
	StatusCheck  uint8 = 0x02
	StatusExcept uint8 = 0x01
)

// NoDevice marks an address with nothing attached.
const NoDevice uint16 = 0xffff

const (
	caw uint32 = 0x48 // Channel Address Word
	csw uint32 = 0x40 // Channel Status Word

	cmdMask   uint32 = 0xff000000
	addrMask  uint32 = 0x00ffffff
	countMask uint32 = 0x0000ffff

	chainData uint16 = 0x8000
	chainCmd  uint16 = 0x4000
	flagSLI   uint16 = 0x2000
	flagPCI   uint16 = 0x0800

	statusBusy   uint16 = 0x1000
	statusChnEnd uint16 = 0x0800
	statusDevEnd uint16 = 0x0400
	statusCheck  uint16 = 0x0200
	statusExcept uint16 = 0x0100
	statusPCI    uint16 = 0x0080
	statusLength uint16 = 0x0040
	statusPCHK   uint16 = 0x0020

	errorStatus uint16 = statusExcept | statusCheck | statusPCHK | statusLength

	bufEmpty uint8 = 0x04
	bufEnd   uint8 = 0x10
)

// subchannel holds the CCW-chain execution state for one device address.
type subchannel struct {
	dev        Device
	addr       uint8
	caw        uint32
	ccwAddr    uint32
	ccwCount   uint16
	ccwCmd     uint8
	ccwKey     uint8
	ccwFlags   uint16
	chanBuffer uint32
	chanStatus uint16
	chanDirty  bool
	chanByte   uint8
	chainFlg   bool
	active     bool
}

// Unit is the channel subsystem for one CPU: a 256-entry device table
// plus one subchannel per entry, operating against the owning CPU's
// memory.
type Unit struct {
	mem        *memory.Store
	devTab     [256]Device
	devStatus  [256]uint8
	sub        [256]subchannel
	irqPending bool
}

// New creates a channel unit bound to the given memory.
func New(m *memory.Store) *Unit {
	return &Unit{mem: m}
}

// AddDevice attaches dev at the given device address (0-255).
func (u *Unit) AddDevice(dev Device, devAddr uint16) {
	u.devTab[devAddr&0xff] = dev
}

// GetDevice returns the device attached at devAddr, if any.
func (u *Unit) GetDevice(devAddr uint16) (Device, bool) {
	d := u.devTab[devAddr&0xff]
	return d, d != nil
}

// IRQPending reports whether any subchannel has raised a pending
// interrupt since the last TestIO/StartIO consumed it.
func (u *Unit) IRQPending() bool {
	return u.irqPending
}

func (u *Unit) storeCSW(s *subchannel) {
	u.mem.WriteWord(csw, (uint32(s.ccwKey)<<24)|s.caw, 0)
	u.mem.WriteWord(csw+4, uint32(s.ccwCount)|(uint32(s.chanStatus)<<16), 0)
	if s.chanStatus&statusPCI != 0 {
		s.chanStatus &^= statusPCI
	} else {
		s.chanStatus = 0
	}
	s.ccwFlags &^= flagPCI
}

// StartIO implements the SIO instruction: return 0 (accepted and
// started), 1 (status stored, retry), 2 (busy), or 3 (not operational).
func (u *Unit) StartIO(devAddr uint16) uint8 {
	idx := devAddr & 0xff
	dev := u.devTab[idx]
	if dev == nil {
		return 3
	}
	s := &u.sub[idx]

	if s.chanStatus != 0 {
		u.storeCSW(s)
		return 1
	}
	if s.ccwCmd != 0 || s.ccwFlags&(chainCmd|chainData) != 0 {
		return 2
	}
	if u.devStatus[idx] != 0 {
		u.mem.WriteWord(csw, 0, 0)
		u.mem.WriteWord(csw+4, uint32(u.devStatus[idx])<<24, 0)
		u.devStatus[idx] = 0
		return 1
	}

	status := dev.StartIO()
	if status&StatusBusy != 0 {
		return 2
	}
	if status != 0 {
		u.mem.WriteWord(csw+4, uint32(status)<<16, 0)
		return 1
	}

	word, fault := u.mem.ReadWord(caw, 0)
	if fault != memory.NoFault {
		return 3
	}
	s.ccwKey = uint8((word >> 24) & 0xf0)
	s.caw = word & addrMask
	s.dev = dev
	s.addr = uint8(idx)
	s.active = true

	if u.loadCCW(s, false) {
		u.mem.WriteWord(csw+4, uint32(s.chanStatus)<<16, 0)
		u.resetSub(s)
		return 1
	}
	if s.chanStatus&statusBusy != 0 {
		u.mem.WriteWord(csw+4, uint32(s.chanStatus)<<16, 0)
		u.resetSub(s)
		return 1
	}
	if s.chanStatus&statusChnEnd != 0 && s.ccwFlags&chainCmd == 0 {
		if s.chanStatus&statusDevEnd != 0 {
			u.storeCSW(s)
		} else {
			u.mem.WriteWord(csw+4, uint32(s.chanStatus)<<16, 0)
		}
		u.resetSub(s)
		return 1
	}
	return 0
}

func (u *Unit) resetSub(s *subchannel) {
	s.chanStatus = 0
	s.ccwCmd = 0
	s.ccwFlags = 0
	s.active = false
}

// TestIO implements TIO: cc=0 available, cc=1 status stored, cc=2 busy,
// cc=3 not operational.
func (u *Unit) TestIO(devAddr uint16) uint8 {
	idx := devAddr & 0xff
	if u.devTab[idx] == nil {
		return 3
	}
	s := &u.sub[idx]
	if s.chanStatus&errorStatus != 0 {
		u.storeCSW(s)
		return 1
	}
	if s.ccwCmd != 0 || s.ccwFlags&(chainCmd|chainData) != 0 {
		return 2
	}
	if s.chanStatus != 0 {
		u.storeCSW(s)
		return 1
	}
	if u.devStatus[idx] != 0 {
		u.mem.WriteWord(csw, 0, 0)
		u.mem.WriteWord(csw+4, uint32(u.devStatus[idx])<<24, 0)
		u.devStatus[idx] = 0
		return 1
	}
	return 0
}

// HaltIO implements HIO: ask the device to stop, clear the pending
// chain, return its status code.
func (u *Unit) HaltIO(devAddr uint16) uint8 {
	idx := devAddr & 0xff
	dev := u.devTab[idx]
	if dev == nil {
		return 3
	}
	s := &u.sub[idx]
	status := dev.HaltIO()
	if status == 1 {
		s.ccwCmd = 0
		s.ccwFlags = 0
		s.chainFlg = false
	}
	return status
}

// TestChan implements TCH: cc=0 if the subchannel is idle, cc=2 if busy.
func (u *Unit) TestChan(devAddr uint16) uint8 {
	idx := devAddr & 0xff
	s := &u.sub[idx]
	if s.active || s.ccwCmd != 0 {
		return 2
	}
	return 0
}

// loadCCW fetches and starts the next CCW in the chain; true means the
// chain aborted and chanStatus carries the reason.
func (u *Unit) loadCCW(s *subchannel, ticOk bool) bool {
	var cmdFlag, chain bool

loop:
	if s.chainFlg && s.ccwFlags&chainData == 0 {
		chain = true
		s.chainFlg = false
		cmdFlag = true
	} else {
		if s.caw&0x7 != 0 {
			s.chanStatus = statusPCHK
			return true
		}
		if s.chanStatus&0x7f != 0 {
			return true
		}
		chain = s.ccwFlags&chainCmd != 0

		word, fault := u.mem.ReadWord(s.caw, s.ccwKey)
		if fault != memory.NoFault {
			s.chanStatus = statusPCHK
			return true
		}
		s.caw = (s.caw + 4) & addrMask

		cmd := uint8((word & cmdMask) >> 24)
		if cmd&0xf == CmdTIC {
			s.caw = (s.caw + 4) & addrMask
			if ticOk {
				s.caw = word & addrMask
				ticOk = false
				goto loop
			}
			s.chanStatus = statusPCHK
			u.irqPending = true
			return true
		}
		if s.ccwFlags&chainData == 0 {
			s.ccwCmd = cmd
			cmdFlag = true
		}
		s.ccwAddr = word & addrMask

		word, fault = u.mem.ReadWord(s.caw, s.ccwKey)
		if fault != memory.NoFault {
			s.chanStatus = statusPCHK
			return true
		}
		s.caw = (s.caw + 4) & addrMask
		s.ccwCount = uint16(word & countMask)
		s.ccwFlags = uint16(word>>16) & 0xff00
		s.chanByte = bufEmpty

		if s.ccwCount == 0 {
			s.chanStatus = statusPCHK
			s.ccwCmd = 0
			u.irqPending = true
			return true
		}
	}

	if cmdFlag {
		if s.ccwCmd&0xf == 0 {
			s.chanStatus |= statusPCHK
			s.ccwCmd = 0
			u.irqPending = true
			return true
		}
		status := s.dev.StartCmd(s.ccwCmd)
		if status&StatusBusy != 0 {
			if chain {
				s.chainFlg = true
			}
			return false
		}
		s.chanStatus &= 0xff
		s.chanStatus |= uint16(status) << 8
		if s.chanStatus&(uint16(StatusAttn)<<8|uint16(StatusCheck)<<8|uint16(StatusExcept)<<8) != 0 {
			s.ccwCmd = 0
			s.ccwFlags = 0
			u.devStatus[s.addr] = uint8(s.chanStatus >> 8 & 0xff)
			u.irqPending = true
			return true
		}
		if s.chanStatus&statusChnEnd != 0 {
			s.ccwFlags |= flagSLI
			s.ccwCmd = 0
			u.irqPending = true
		}
	}

	if s.ccwFlags&flagPCI != 0 {
		s.chanStatus |= statusPCI
		u.irqPending = true
	}
	return false
}

// byteLane locates the byte lane within a big-endian-packed word for
// channel byte position b (0-3, wrapping via bufEmpty/bufEnd outside
// that range).
func byteLane(b uint8) uint { return 8 * (3 - uint(b&3)) }

// ChanReadByte returns the next byte of a read-command transfer; ok is
// false once the transfer is exhausted or errored.
func (u *Unit) ChanReadByte(devAddr uint16) (uint8, bool) {
	idx := devAddr & 0xff
	s := &u.sub[idx]
	if s.chanStatus&0x7f != 0 || s.ccwCmd&1 == 0 || s.chanByte == bufEnd {
		return 0, false
	}
	if s.ccwCount == 0 {
		if s.ccwFlags&chainData == 0 {
			s.chanStatus |= statusChnEnd
			s.chanByte = bufEnd
			return 0, false
		}
		if u.loadCCW(s, true) {
			return 0, false
		}
	}
	if s.chanByte == bufEmpty {
		word, fault := u.mem.ReadWord(s.ccwAddr&^3, s.ccwKey)
		if fault != memory.NoFault {
			s.chanStatus |= statusPCHK
			return 0, false
		}
		s.chanBuffer = word
		s.chanByte = uint8(s.ccwAddr & 3)
	}
	s.ccwCount--
	data := uint8(s.chanBuffer >> byteLane(s.chanByte))
	s.chanByte++
	if s.chanByte > 3 {
		s.ccwAddr += 4 - (s.ccwAddr & 3)
		s.chanByte = bufEmpty
	}
	if s.ccwCount == 0 && s.ccwFlags&chainData != 0 {
		if u.loadCCW(s, true) {
			s.chanByte = bufEnd
		}
	}
	return data, true
}

// ChanWriteByte stores one byte of a write-command transfer; ok is
// false once the transfer is exhausted or errored.
func (u *Unit) ChanWriteByte(devAddr uint16, data uint8) bool {
	idx := devAddr & 0xff
	s := &u.sub[idx]
	if s.chanStatus&0x7f != 0 || s.ccwCmd&1 != 0 || s.chanByte == bufEnd {
		if s.ccwFlags&flagSLI == 0 {
			s.chanStatus |= statusLength
		}
		return false
	}
	if s.ccwCount == 0 {
		if s.chanDirty {
			u.flushBuffer(s)
		}
		if s.ccwFlags&chainData == 0 {
			s.chanByte = bufEnd
			if s.ccwFlags&flagSLI == 0 {
				s.chanStatus |= statusLength
			}
			return false
		}
		if u.loadCCW(s, true) {
			return false
		}
	}
	if s.chanByte == bufEmpty {
		word, fault := u.mem.ReadWord(s.ccwAddr&^3, s.ccwKey)
		if fault != memory.NoFault {
			s.chanStatus |= statusPCHK
			return false
		}
		s.chanBuffer = word
		s.chanByte = uint8(s.ccwAddr & 3)
	}
	s.ccwCount--
	offset := byteLane(s.chanByte)
	mask := uint32(0xff) << offset
	s.chanBuffer = (s.chanBuffer &^ mask) | (uint32(data) << offset)
	s.chanDirty = true
	s.chanByte++
	if s.chanByte > 3 {
		u.flushBuffer(s)
		s.ccwAddr += 4 - (s.ccwAddr & 3)
		s.chanByte = bufEmpty
	}
	if s.ccwCount == 0 && s.ccwFlags&chainData != 0 {
		if s.chanDirty {
			u.flushBuffer(s)
		}
		if u.loadCCW(s, true) {
			return false
		}
	}
	return true
}

func (u *Unit) flushBuffer(s *subchannel) {
	u.mem.WriteWord(s.ccwAddr&^3, s.chanBuffer, s.ccwKey)
	s.chanDirty = false
}

// ChanEnd is called by a device to signal channel end (and optionally
// device end) for the command in progress.
func (u *Unit) ChanEnd(devAddr uint16, flags uint8) {
	idx := devAddr & 0xff
	s := &u.sub[idx]
	if s.chanDirty {
		u.flushBuffer(s)
	}
	s.chanStatus |= statusChnEnd
	s.chanStatus |= uint16(flags) << 8
	s.ccwCmd = 0

	if s.ccwCount != 0 && s.ccwFlags&flagSLI == 0 {
		s.chanStatus |= statusLength
		s.ccwFlags = 0
	}
	if flags&(StatusAttn|StatusCheck|StatusExcept) != 0 {
		s.ccwFlags = 0
	}
	if flags&StatusDevEnd != 0 {
		s.ccwFlags &^= chainData | flagSLI
	}
	u.irqPending = true
}

// SetDevAttn lets a device report an asynchronous status change (e.g.
// unit attention) outside of an active command.
func (u *Unit) SetDevAttn(devAddr uint16, flags uint8) {
	idx := devAddr & 0xff
	s := &u.sub[idx]
	if s.chainFlg && flags&StatusDevEnd != 0 {
		s.chanStatus |= uint16(flags) << 8
		return
	}
	if flags&StatusDevEnd != 0 && (s.chanStatus&statusChnEnd != 0 || s.ccwCmd != 0) {
		s.chanStatus |= uint16(flags) << 8
		s.ccwCmd = 0
		return
	}
	u.devStatus[idx] = flags
	u.irqPending = true
}
