// Package board holds the catalog of supported target boards.
package board

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Board describes one supported target: where its kernel image comes
// from, which probe configuration script drives it, and how to talk to
// its UART.
type Board struct {
	Name         string `mapstructure:"name" json:"name"`
	TargetTriple string `mapstructure:"triple" json:"triple"`
	ProbeConfig  string `mapstructure:"probecfg" json:"probecfg"`
	FlashBase    uint32 `mapstructure:"flashbase" json:"flashbase"`
	BaudRate     uint   `mapstructure:"baudrate" json:"baudrate"`
	Artifact     string `mapstructure:"artifact" json:"artifact"`
}

// ArtifactName is the image file stem; it defaults to the board name.
func (b Board) ArtifactName() string {
	if b.Artifact != "" {
		return b.Artifact
	}
	return b.Name
}

var builtin = []Board{
	{
		Name:         "stm32f4discovery",
		TargetTriple: "thumbv7em-none-eabi",
		ProbeConfig:  "board/stm32f4discovery.cfg",
		FlashBase:    0x08000000,
		BaudRate:     115200,
	},
	{
		Name:         "nucleo-f429zi",
		TargetTriple: "thumbv7em-none-eabi",
		ProbeConfig:  "board/st_nucleo_f4.cfg",
		FlashBase:    0x08000000,
		BaudRate:     115200,
	},
	{
		Name:         "hifive1-revb",
		TargetTriple: "riscv32imac-unknown-none-elf",
		ProbeConfig:  "board/sifive-hifive1-revb.cfg",
		FlashBase:    0x20010000,
		BaudRate:     115200,
	},
}

// Catalog returns the builtin boards plus any defined under the
// "boards" config key. A config entry with a builtin name replaces the
// builtin definition.
func Catalog() ([]Board, error) {
	var extra []Board
	raw := viper.Get("boards")
	if raw != nil {
		if err := mapstructure.Decode(raw, &extra); err != nil {
			return nil, fmt.Errorf("bad boards config: %v", err)
		}
	}

	boards := make([]Board, 0, len(builtin)+len(extra))
	replaced := make(map[string]bool)
	for _, e := range extra {
		replaced[e.Name] = true
	}
	for _, b := range builtin {
		if !replaced[b.Name] {
			boards = append(boards, b)
		}
	}
	boards = append(boards, extra...)
	return boards, nil
}

// Lookup finds a board by name in the catalog.
func Lookup(name string) (Board, error) {
	boards, err := Catalog()
	if err != nil {
		return Board{}, err
	}
	for _, b := range boards {
		if b.Name == name {
			return b, nil
		}
	}
	return Board{}, fmt.Errorf("unknown board: %s", name)
}
