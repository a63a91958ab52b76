// Package console attaches the operator's terminal to a board UART.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// Attach opens the port and pumps bytes between it and the terminal
// until stdin closes or the port fails.
func Attach(portName string, baudRate uint, logger *zap.Logger) error {
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
		return err
	}
	defer port.Close()

	logger.Info("console", zap.String("port", portName), zap.Uint("baud", baudRate))

	readErr := make(chan error, 1)
	go func() {
		readErr <- pumpToStdout(port)
	}()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- pumpFromStdin(port)
	}()

	select {
	case err := <-readErr:
		return err
	case err := <-writeErr:
		return err
	}
}

func pumpToStdout(port io.Reader) error {
	buffer := make([]byte, 256)
	for {
		n, err := port.Read(buffer)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("\nEOF")
			return nil
		}
		os.Stdout.Write(buffer[:n])
	}
}

func pumpFromStdin(port io.Writer) error {
	buffer := make([]byte, 256)
	reader := bufio.NewReader(os.Stdin)
	for {
		n, err := reader.Read(buffer)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if _, err := port.Write(buffer[:n]); err != nil {
			return err
		}
	}
}
