// Package image loads firmware images for the serial bootloader path.
package image

import (
	"os"
	"strconv"
	"strings"

	"github.com/marcinbor85/gohex"
)

// Image is the sparse memory content of a firmware file.
type Image struct {
	*gohex.Memory
}

// Block is one contiguous chunk of image data, sized for a single
// bootloader write command.
type Block struct {
	Address uint32
	Data    []byte
}

// LoadHexFile reads an Intel HEX file.
func LoadHexFile(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(file); err != nil {
		return nil, err
	}
	return &Image{mem}, nil
}

// LoadTIText parses firmware in the TI-TXT format, which some vendor
// toolchains emit instead of Intel HEX.
func LoadTIText(data string) (*Image, error) {
	mem := gohex.NewMemory()

	startAddr := uint32(0)
	segmentData := []byte{}

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == 'q' {
			break
		}

		if line[0] == '@' {
			if len(segmentData) > 0 {
				mem.AddBinary(startAddr, segmentData)
			}
			addr, err := strconv.ParseUint(line[1:], 16, 32)
			if err != nil {
				return nil, err
			}
			startAddr = uint32(addr)
			segmentData = []byte{}
			continue
		}

		for _, val := range strings.Fields(line) {
			b, err := strconv.ParseUint(val, 16, 8)
			if err != nil {
				return nil, err
			}
			segmentData = append(segmentData, byte(b))
		}
	}

	if len(segmentData) > 0 {
		mem.AddBinary(startAddr, segmentData)
	}
	return &Image{mem}, nil
}

// Range returns the image content between fromAddr and toAddr
// inclusive. Addresses the image does not define read as 0xFF, the
// erased state of flash.
func (m Image) Range(fromAddr, toAddr uint32) []byte {
	res := make([]byte, 0, toAddr-fromAddr+1)

	for addr := fromAddr; addr <= toAddr; addr++ {
		b := byte(0xFF)
		for _, seg := range m.GetDataSegments() {
			segEnd := seg.Address + uint32(len(seg.Data))
			if seg.Address <= addr && addr < segEnd {
				b = seg.Data[addr-seg.Address]
				break
			}
		}
		res = append(res, b)
	}
	return res
}

// Blocks splits the image's data segments into write-sized blocks.
func (m Image) Blocks(size int) []Block {
	var blocks []Block
	for _, seg := range m.GetDataSegments() {
		data := seg.Data
		addr := seg.Address
		for len(data) > 0 {
			n := size
			if n > len(data) {
				n = len(data)
			}
			blocks = append(blocks, Block{Address: addr, Data: data[:n]})
			addr += uint32(n)
			data = data[n:]
		}
	}
	return blocks
}

// TotalSize is the number of defined bytes in the image.
func (m Image) TotalSize() int {
	total := 0
	for _, seg := range m.GetDataSegments() {
		total += len(seg.Data)
	}
	return total
}
