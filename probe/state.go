package probe

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
)

// TargetState asks the programmer for the current state of the
// selected target (running, halted, reset, ...).
func (p *Probe) TargetState() (string, error) {
	out, err := p.Runner(p.OpenOCD, p.Args("init; targets; shutdown")...)
	if err != nil {
		return "", err
	}
	return parseTargetState(out)
}

// parseTargetState pulls the state column of the active target out of
// openocd's "targets" listing:
//
//	    TargetName         Type       Endian TapName            State
//	--  ------------------ ---------- ------ ------------------ ------------
//	 0* stm32f4x.cpu       hla_target little stm32f4x.cpu       running
func parseTargetState(out []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewBuffer(out))
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		if !strings.HasSuffix(fields[0], "*") {
			continue
		}
		return fields[len(fields)-1], nil
	}

	return "", errors.New("no active target in programmer output")
}
