package console

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// Devices that show up as USB CDC-ACM or USB-serial adapters are the
// usual suspects for board consoles.
var portGlobs = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
}

// CandidatePorts lists serial devices that could be attached boards.
func CandidatePorts() []string {
	var ports []string
	for _, glob := range portGlobs {
		matches, err := filepath.Glob(glob)
		if err != nil {
			continue
		}
		ports = append(ports, matches...)
	}
	sort.Strings(ports)
	return ports
}

// Kernels announce themselves on the console shortly after reset.
var bannerRegex = regexp.MustCompile(`(?m)^[^\r\n]*(?i:kernel|boot|initialization)[^\r\n]*`)

// ExtractBanner picks the kernel greeting out of raw console bytes.
// Returns the empty string when no recognizable line arrived.
func ExtractBanner(data []byte) string {
	if m := bannerRegex.Find(data); m != nil {
		return strings.TrimSpace(string(m))
	}
	return ""
}

// Identify opens a port briefly and reports the kernel banner heard on
// it, or the empty string for a silent port.
func Identify(portName string, baudRate uint) (string, error) {
	options := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		InterCharacterTimeout: 500,
		MinimumReadSize:       0,
	}

	port, err := serial.Open(options)
	if err != nil {
		return "", err
	}
	defer port.Close()

	deadline := time.Now().Add(2 * time.Second)
	buff := make([]byte, 0, 512)
	chunk := make([]byte, 64)

	for time.Now().Before(deadline) && len(buff) < cap(buff) {
		n, err := port.Read(chunk)
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
		buff = append(buff, chunk[:n]...)
		if banner := ExtractBanner(buff); banner != "" {
			return banner, nil
		}
	}

	return ExtractBanner(buff), nil
}
