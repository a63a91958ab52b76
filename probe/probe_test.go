package probe

import (
	"errors"
	"reflect"
	"testing"
)

func TestFlashSequence(t *testing.T) {
	want := "init; reset halt; flash write_image erase target/thumbv7em-none-eabi/release/stm32f4discovery.elf; " +
		"verify_image target/thumbv7em-none-eabi/release/stm32f4discovery.elf; reset; shutdown"
	got := FlashSequence("target/thumbv7em-none-eabi/release/stm32f4discovery.elf")
	if got != want {
		t.Errorf("FlashSequence =\n%q\nwant\n%q", got, want)
	}
}

func TestArgs(t *testing.T) {
	p := New("openocd", "board/st_nucleo_f4.cfg", nil)

	got := p.Args(FlashSequence("kernel.elf"))
	want := []string{
		"-f", "board/st_nucleo_f4.cfg",
		"-c", "init; reset halt; flash write_image erase kernel.elf; verify_image kernel.elf; reset; shutdown",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %q, want %q", got, want)
	}
}

func TestFlashInvokesRunnerOnce(t *testing.T) {
	p := New("", "board/stm32f4discovery.cfg", nil)

	var calls int
	var gotName string
	var gotArgs []string
	p.Runner = func(name string, args ...string) ([]byte, error) {
		calls++
		gotName = name
		gotArgs = args
		return []byte("wrote 65536 bytes"), nil
	}

	if err := p.Flash("kernel.elf"); err != nil {
		t.Fatalf("Flash error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("runner called %d times", calls)
	}
	if gotName != "openocd" {
		t.Errorf("binary = %q", gotName)
	}
	want := p.Args(FlashSequence("kernel.elf"))
	if !reflect.DeepEqual(gotArgs, want) {
		t.Errorf("args = %q, want %q", gotArgs, want)
	}
}

func TestFlashPropagatesFailure(t *testing.T) {
	p := New("openocd", "board/stm32f4discovery.cfg", nil)
	p.Runner = func(name string, args ...string) ([]byte, error) {
		return []byte("Error: couldn't bind to socket"), errors.New("exit status 1")
	}

	if err := p.Flash("kernel.elf"); err == nil {
		t.Fatal("Flash succeeded despite runner failure")
	}
}

func TestParseTargetState(t *testing.T) {
	out := []byte(`Open On-Chip Debugger 0.10.0
    TargetName         Type       Endian TapName            State
--  ------------------ ---------- ------ ------------------ ------------
 0* stm32f4x.cpu       hla_target little stm32f4x.cpu       running
`)
	state, err := parseTargetState(out)
	if err != nil {
		t.Fatal(err)
	}
	if state != "running" {
		t.Errorf("state = %q, want running", state)
	}
}

func TestParseTargetStateNoTarget(t *testing.T) {
	if _, err := parseTargetState([]byte("Error: no device found\n")); err == nil {
		t.Fatal("expected error for output without targets table")
	}
}
