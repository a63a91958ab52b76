// Package probe drives a board's debug interface through openocd.
package probe

import (
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Runner executes the external programmer and returns its combined
// output. Swapped out in tests.
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Probe is one openocd-driven debug probe attached to a board.
type Probe struct {
	OpenOCD string // programmer binary, usually plain "openocd"
	Config  string // configuration script passed with -f

	Logger *zap.Logger
	Runner Runner
}

func New(openocd, config string, logger *zap.Logger) *Probe {
	if openocd == "" {
		openocd = "openocd"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		OpenOCD: openocd,
		Config:  config,
		Logger:  logger,
		Runner:  execRunner,
	}
}

// FlashSequence is the command sequence the programmer runs to load an
// image: bring the target up, halt it, erase and write, verify the
// written image, then reset into the new kernel and release the probe.
func FlashSequence(imagePath string) string {
	return fmt.Sprintf("init; reset halt; flash write_image erase %s; verify_image %s; reset; shutdown",
		imagePath, imagePath)
}

func ResetSequence() string {
	return "init; reset halt; reset; shutdown"
}

func HaltSequence() string {
	return "init; reset halt; shutdown"
}

// Args builds the full programmer argument list for one sequence.
func (p *Probe) Args(sequence string) []string {
	return []string{"-f", p.Config, "-c", sequence}
}

// Flash writes the image, verifies it and resets the target.
func (p *Probe) Flash(imagePath string) error {
	return p.invoke(FlashSequence(imagePath))
}

// Reset power-cycles the target through the probe without touching
// flash contents.
func (p *Probe) Reset() error {
	return p.invoke(ResetSequence())
}

// Halt stops the target and leaves it halted.
func (p *Probe) Halt() error {
	return p.invoke(HaltSequence())
}

func (p *Probe) invoke(sequence string) error {
	args := p.Args(sequence)
	p.Logger.Info("probe", zap.String("bin", p.OpenOCD), zap.Strings("args", args))

	start := time.Now()
	out, err := p.Runner(p.OpenOCD, args...)
	if err != nil {
		p.Logger.Error("probe", zap.Error(err), zap.ByteString("output", out))
		return fmt.Errorf("%s failed: %v", p.OpenOCD, err)
	}

	p.Logger.Debug("probe", zap.Duration("took", time.Since(start)),
		zap.ByteString("output", out))
	return nil
}
