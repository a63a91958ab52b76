package bootloader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"go.uber.org/zap"

	"github.com/GoFlashTools/goflash/image"
)

func TestFrameLayout(t *testing.T) {
	got := frame(cmdErase, nil)

	if got[0] != frameStart || got[1] != cmdErase {
		t.Errorf("header = %X", got[:2])
	}
	if got[2] != 0 || got[3] != 0 {
		t.Errorf("length = %X", got[2:4])
	}
	if len(got) != 6 {
		t.Fatalf("frame length = %d, want 6", len(got))
	}

	// Frame body plus checksum must sum to zero.
	var sum uint16
	for _, v := range got[1:] {
		sum += uint16(v)
	}
	if sum != 0 {
		t.Errorf("frame does not sum to zero: %04X", sum)
	}
}

func TestFramePayloadLength(t *testing.T) {
	payload := make([]byte, 0x1234)
	got := frame(cmdWrite, payload)

	if got[2] != 0x34 || got[3] != 0x12 {
		t.Errorf("length field = %02X%02X, want 3412", got[2], got[3])
	}
	if len(got) != 0x1234+6 {
		t.Errorf("frame length = %d", len(got))
	}
}

func TestSum16(t *testing.T) {
	if got := sum16([]byte{0x01, 0x02}); got+3 != 0 {
		t.Errorf("sum16 = %04X, complement broken", got)
	}
	if got := sum16(nil); got != 0 {
		t.Errorf("sum16(nil) = %04X, want 0", got)
	}
}

// fakePort scripts the device side of the conversation: every written
// frame is recorded and answered from a canned reply queue.
type fakePort struct {
	written [][]byte
	replies *bytes.Buffer
}

func (f *fakePort) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	return f.replies.Read(p)
}

func (f *fakePort) Close() error { return nil }

func TestProgramHappyPath(t *testing.T) {
	img, err := image.LoadTIText("@1000\n01 02 03 04 05 06\nq\n")
	if err != nil {
		t.Fatal(err)
	}

	ck := dataSum([]byte{1, 2, 3, 4, 5, 6})

	port := &fakePort{replies: &bytes.Buffer{}}
	// sync, erase, two write blocks, checksum request + value, run
	port.replies.Write([]byte{replyACK, replyACK, replyACK, replyACK, replyACK})
	ckBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(ckBytes, ck)
	port.replies.Write(ckBytes)
	port.replies.Write([]byte{replyACK})

	b := &Bootloader{port: port, logger: zap.NewNop(), PageSize: 4}

	if err := b.Program(img, 0x1000); err != nil {
		t.Fatalf("Program error: %v", err)
	}

	// sync byte, erase, write x2, checksum, run
	if len(port.written) != 6 {
		t.Fatalf("wrote %d frames, want 6", len(port.written))
	}
	if port.written[1][1] != cmdErase {
		t.Errorf("frame 1 cmd = %02X, want erase", port.written[1][1])
	}
	if port.written[2][1] != cmdWrite || port.written[3][1] != cmdWrite {
		t.Errorf("frames 2,3 not writes: %02X %02X", port.written[2][1], port.written[3][1])
	}

	// First write block carries the address 0x1000 and four bytes.
	addr := binary.LittleEndian.Uint32(port.written[2][4:8])
	if addr != 0x1000 {
		t.Errorf("block addr = %08X, want 00001000", addr)
	}
	if port.written[5][1] != cmdRun {
		t.Errorf("last cmd = %02X, want run", port.written[5][1])
	}
}

func TestProgramChecksumMismatch(t *testing.T) {
	img, err := image.LoadTIText("@1000\n01 02\nq\n")
	if err != nil {
		t.Fatal(err)
	}

	port := &fakePort{replies: &bytes.Buffer{}}
	port.replies.Write([]byte{replyACK, replyACK, replyACK, replyACK})
	port.replies.Write([]byte{0xDE, 0xAD}) // wrong checksum

	b := &Bootloader{port: port, logger: zap.NewNop(), PageSize: DefaultPageSize}

	if err := b.Program(img, 0x1000); err == nil {
		t.Fatal("Program succeeded despite checksum mismatch")
	}
}

func TestNAKSurfaces(t *testing.T) {
	port := &fakePort{replies: bytes.NewBuffer([]byte{replyNAK})}
	b := &Bootloader{port: port, logger: zap.NewNop(), PageSize: DefaultPageSize}

	if err := b.Erase(); err != ErrNAK {
		t.Errorf("Erase error = %v, want ErrNAK", err)
	}
}
