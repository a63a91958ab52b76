// Package bootloader programs boards over their serial bootloader,
// for setups without a debug probe attached.
package bootloader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/GoFlashTools/goflash/image"
)

const (
	frameStart byte = 0x80
	replyACK   byte = 0x90
	replyNAK   byte = 0xA0

	cmdErase    byte = 0x38
	cmdWrite    byte = 0x39
	cmdChecksum byte = 0x3A
	cmdRun      byte = 0x3B

	// DefaultPageSize is the write granularity most supported
	// bootloaders accept.
	DefaultPageSize = 256

	syncRetries = 8
)

var ErrNAK = errors.New("bootloader rejected command (NAK)")

// Bootloader is an open serial connection to a board's bootloader.
type Bootloader struct {
	port     io.ReadWriteCloser
	logger   *zap.Logger
	PageSize int
}

// Open connects to the bootloader UART.
func Open(portName string, baudRate uint, logger *zap.Logger) (*Bootloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	options := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, err
	}

	return &Bootloader{
		port:     port,
		logger:   logger,
		PageSize: DefaultPageSize,
	}, nil
}

func (b *Bootloader) Close() error {
	return b.port.Close()
}

// frame wraps one command in the wire format: start byte, command,
// 16-bit payload length, payload, and a 16-bit checksum over
// everything after the start byte.
func frame(cmd byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+6)
	buf = append(buf, frameStart, cmd)
	buf = append(buf, byte(len(payload)), byte(len(payload)>>8))
	buf = append(buf, payload...)

	ck := sum16(buf[1:])
	buf = append(buf, byte(ck), byte(ck>>8))
	return buf
}

// sum16 is the two's complement of the 16-bit byte sum, so that
// summing frame body and checksum together yields zero.
func sum16(data []byte) uint16 {
	var sum uint16
	for _, v := range data {
		sum += uint16(v)
	}
	return ^sum + 1
}

func (b *Bootloader) send(cmd byte, payload []byte) error {
	if _, err := b.port.Write(frame(cmd, payload)); err != nil {
		return err
	}
	return b.readACK()
}

func (b *Bootloader) readACK() error {
	reply := make([]byte, 1)
	if _, err := io.ReadFull(b.port, reply); err != nil {
		return err
	}
	switch reply[0] {
	case replyACK:
		return nil
	case replyNAK:
		return ErrNAK
	default:
		return fmt.Errorf("unexpected bootloader reply: %02X", reply[0])
	}
}

// Sync pings the bootloader until it answers. Boards need a moment
// after reset before their bootloader listens.
func (b *Bootloader) Sync() error {
	var err error
	for i := 0; i < syncRetries; i++ {
		if _, err = b.port.Write([]byte{frameStart}); err != nil {
			return err
		}
		if err = b.readACK(); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("bootloader did not sync: %v", err)
}

// Erase wipes the application flash region.
func (b *Bootloader) Erase() error {
	return b.send(cmdErase, nil)
}

// WriteBlock programs one block of flash.
func (b *Bootloader) WriteBlock(addr uint32, data []byte) error {
	payload := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(payload, addr)
	copy(payload[4:], data)
	return b.send(cmdWrite, payload)
}

// Checksum asks the device for its checksum of a flash range.
func (b *Bootloader) Checksum(addr, length uint32) (uint16, error) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload, addr)
	binary.LittleEndian.PutUint32(payload[4:], length)

	if err := b.send(cmdChecksum, payload); err != nil {
		return 0, err
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(b.port, reply); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(reply), nil
}

// Run starts the programmed application.
func (b *Bootloader) Run(addr uint32) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, addr)
	return b.send(cmdRun, payload)
}

// Program erases the device, writes every block of the image, verifies
// each data segment against the device checksum and starts the kernel.
func (b *Bootloader) Program(img *image.Image, startAddr uint32) error {
	if err := b.Sync(); err != nil {
		return err
	}

	b.logger.Info("bootloader", zap.String("action", "erase"))
	if err := b.Erase(); err != nil {
		return err
	}

	blocks := img.Blocks(b.PageSize)
	for i, blk := range blocks {
		b.logger.Debug("bootloader",
			zap.Int("block", i),
			zap.Uint32("addr", blk.Address),
			zap.Int("len", len(blk.Data)))
		if err := b.WriteBlock(blk.Address, blk.Data); err != nil {
			return fmt.Errorf("write at %08X: %v", blk.Address, err)
		}
	}

	for _, seg := range img.GetDataSegments() {
		remote, err := b.Checksum(seg.Address, uint32(len(seg.Data)))
		if err != nil {
			return err
		}
		if local := dataSum(seg.Data); remote != local {
			return fmt.Errorf("verify failed at %08X: device %04X, image %04X",
				seg.Address, remote, local)
		}
	}

	b.logger.Info("bootloader", zap.String("action", "run"), zap.Uint32("addr", startAddr))
	return b.Run(startAddr)
}

// dataSum is the plain 16-bit byte sum the device reports for a range.
func dataSum(data []byte) uint16 {
	var sum uint16
	for _, v := range data {
		sum += uint16(v)
	}
	return sum
}
