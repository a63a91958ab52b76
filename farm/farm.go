// Package farm runs a bench of boards as a long-lived flashing
// service, controllable over HTTP/JSON-RPC.
package farm

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GoFlashTools/goflash/artifact"
	"github.com/GoFlashTools/goflash/board"
	"github.com/GoFlashTools/goflash/probe"
	"github.com/GoFlashTools/goflash/rig"
	"github.com/GoFlashTools/goflash/statistics"
	"github.com/GoFlashTools/goflash/types"
)

type slotState struct {
	board  board.Board
	states *types.BoardStates
	tp     *statistics.Throughput
}

// Farm does everything the serve command needs: it owns the probe, the
// rig mux and the per-slot bookkeeping.
type Farm struct {
	Boards    []board.Board
	OpenOCD   string
	BuildRoot string
	Listen    string
	LogLevel  string
	UseRig    bool

	// Runner overrides the probe exec function; tests use it.
	Runner probe.Runner

	mu     sync.Mutex
	slots  []*slotState
	logger *zap.Logger
}

// Setup builds the slot table and the logger. Call once before Serve.
func (f *Farm) Setup() {
	f.logger = InitLogger(f.LogLevel)

	f.slots = make([]*slotState, len(f.Boards))
	for i, b := range f.Boards {
		f.slots[i] = &slotState{
			board: b,
			states: &types.BoardStates{
				Board:  b.Name,
				Slot:   i + 1,
				Status: types.Idle,
			},
			tp: &statistics.Throughput{},
		}
	}

	if f.UseRig {
		if err := rig.Open(); err != nil {
			log.Print("Cannot open GPIO: ", err)
			f.UseRig = false
		} else {
			rig.InitConsoleLevel()
		}
	}
}

// Reload applies changed configuration to a running farm.
func (f *Farm) Reload(boards []board.Board, loglevel string) {
	log.Print("Reloading farm")
	SetLogLevel(loglevel)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.LogLevel = loglevel
	f.Boards = boards
	f.slots = make([]*slotState, len(boards))
	for i, b := range boards {
		f.slots[i] = &slotState{
			board: b,
			states: &types.BoardStates{
				Board:  b.Name,
				Slot:   i + 1,
				Status: types.Idle,
			},
			tp: &statistics.Throughput{},
		}
	}
}

func (f *Farm) probeFor(b board.Board) *probe.Probe {
	p := probe.New(f.OpenOCD, b.ProbeConfig, f.logger)
	if f.Runner != nil {
		p.Runner = f.Runner
	}
	return p
}

func (f *Farm) findSlot(name string) (*slotState, error) {
	for _, s := range f.slots {
		if s.board.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no slot holds board %s", name)
}

// FlashSlot resolves the image for the named board and flashes it
// through the probe, keeping the slot's status and throughput stats
// up to date.
func (f *Farm) FlashSlot(name, profile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, err := f.findSlot(name)
	if err != nil {
		return err
	}

	if profile != artifact.ProfileRelease && profile != artifact.ProfileDebug {
		return errors.New("profile must be release or debug")
	}

	art := artifact.Artifact{
		BuildRoot:    f.BuildRoot,
		TargetTriple: slot.board.TargetTriple,
		Profile:      profile,
		Name:         slot.board.ArtifactName(),
	}

	path, err := art.Resolve()
	if err != nil {
		slot.states.Status = types.Failed
		slot.states.FailCount++
		return err
	}

	if f.UseRig {
		rig.SelectJTAG(uint8(slot.states.Slot))
	}

	slot.states.Status = types.Flashing
	slot.states.Image = path
	slot.states.Profile = profile

	start := time.Now()
	if err := f.probeFor(slot.board).Flash(path); err != nil {
		slot.states.Status = types.Failed
		slot.states.FailCount++
		return err
	}

	took := time.Since(start)
	if size, err := art.Size(); err == nil && took > 0 {
		slot.tp.Add(float64(size) / took.Seconds())
	}
	if sha, err := art.SHA256(); err == nil {
		slot.states.ImageSHA256 = sha
	}

	slot.states.Status = types.Idle
	slot.states.LastFlashed = time.Now().Unix()
	slot.states.FlashCount++

	f.logger.Info("farm",
		zap.String("board", name),
		zap.String("image", path),
		zap.Duration("took", took))
	return nil
}

// ResetSlot resets the named board through the probe (and the rig's
// reset mux when present).
func (f *Farm) ResetSlot(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, err := f.findSlot(name)
	if err != nil {
		return err
	}

	slot.states.Status = types.Resetting
	if f.UseRig {
		rig.SelectReset(uint8(slot.states.Slot))
	}
	err = f.probeFor(slot.board).Reset()
	if err != nil {
		slot.states.Status = types.NoResponse
		return err
	}
	slot.states.Status = types.Idle
	return nil
}
