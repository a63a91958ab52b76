package farm

import (
	"encoding/json"
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoFlashTools/goflash/artifact"
	"github.com/GoFlashTools/goflash/board"
	"github.com/GoFlashTools/goflash/types"
)

func testBoard() board.Board {
	return board.Board{
		Name:         "stm32f4discovery",
		TargetTriple: "thumbv7em-none-eabi",
		ProbeConfig:  "board/stm32f4discovery.cfg",
	}
}

func buildImage(t *testing.T, root string, b board.Board, profile string) string {
	t.Helper()
	a := artifact.Artifact{
		BuildRoot:    root,
		TargetTriple: b.TargetTriple,
		Profile:      profile,
		Name:         b.ArtifactName(),
	}
	if err := os.MkdirAll(filepath.Dir(a.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(a.Path(), []byte("fake kernel image"), 0644); err != nil {
		t.Fatal(err)
	}
	return a.Path()
}

func TestFlashSlot(t *testing.T) {
	root := t.TempDir()
	b := testBoard()
	buildImage(t, root, b, artifact.ProfileRelease)

	var calls int
	f := &Farm{
		Boards:    []board.Board{b},
		BuildRoot: root,
		LogLevel:  "error",
		Runner: func(name string, args ...string) ([]byte, error) {
			calls++
			return nil, nil
		},
	}
	f.Setup()

	if err := f.FlashSlot("stm32f4discovery", artifact.ProfileRelease); err != nil {
		t.Fatalf("FlashSlot error: %v", err)
	}
	if calls != 1 {
		t.Errorf("probe invoked %d times, want 1", calls)
	}

	st := f.slots[0].states
	if st.Status != types.Idle || st.FlashCount != 1 || st.ImageSHA256 == "" {
		t.Errorf("slot state after flash: %+v", st)
	}
}

func TestFlashSlotMissingArtifactSkipsProbe(t *testing.T) {
	b := testBoard()

	var calls int
	f := &Farm{
		Boards:    []board.Board{b},
		BuildRoot: t.TempDir(),
		LogLevel:  "error",
		Runner: func(name string, args ...string) ([]byte, error) {
			calls++
			return nil, nil
		},
	}
	f.Setup()

	if err := f.FlashSlot("stm32f4discovery", artifact.ProfileRelease); err == nil {
		t.Fatal("FlashSlot succeeded without a built image")
	}
	if calls != 0 {
		t.Errorf("probe invoked %d times for a missing image", calls)
	}
	if f.slots[0].states.Status != types.Failed {
		t.Errorf("slot status = %v, want Failed", f.slots[0].states.Status)
	}
}

func TestFlashSlotUnknownBoard(t *testing.T) {
	f := &Farm{Boards: nil, LogLevel: "error"}
	f.Setup()

	if err := f.FlashSlot("no-such-board", artifact.ProfileRelease); err == nil {
		t.Fatal("FlashSlot succeeded for a board the farm does not hold")
	}
}

func TestGetStatusHandler(t *testing.T) {
	b := testBoard()
	f := &Farm{Boards: []board.Board{b}, LogLevel: "error"}
	f.Setup()

	req := httptest.NewRequest("GET", "/goflash/f_status", nil)
	w := httptest.NewRecorder()
	f.Router(nil).ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status code = %d", w.Code)
	}

	var reply types.StatusReply
	if err := json.NewDecoder(w.Body).Decode(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Status == nil || !reply.Status.FarmUp {
		t.Fatalf("reply = %+v", reply)
	}
	if len(reply.Status.Boards) != 1 || reply.Status.Boards[0].Board != "stm32f4discovery" {
		t.Errorf("boards = %+v", reply.Status.Boards)
	}
}

func TestCtrlFlash(t *testing.T) {
	root := t.TempDir()
	b := testBoard()
	buildImage(t, root, b, artifact.ProfileDebug)

	var gotArgs []string
	f := &Farm{
		Boards:    []board.Board{b},
		BuildRoot: root,
		LogLevel:  "error",
		Runner: func(name string, args ...string) ([]byte, error) {
			gotArgs = args
			return nil, nil
		},
	}
	f.Setup()

	req := httptest.NewRequest("GET",
		"/goflash/f_ctrl?command=flash&board=stm32f4discovery&profile=debug", nil)
	w := httptest.NewRecorder()
	f.Router(nil).ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status code = %d, body %s", w.Code, w.Body.String())
	}
	if len(gotArgs) == 0 {
		t.Fatal("probe never invoked")
	}
}

func TestCtrlMissingCommand(t *testing.T) {
	f := &Farm{LogLevel: "error"}
	f.Setup()

	req := httptest.NewRequest("GET", "/goflash/f_ctrl", nil)
	w := httptest.NewRecorder()
	f.Router(nil).ServeHTTP(w, req)

	if w.Code != 400 {
		t.Errorf("status code = %d, want 400", w.Code)
	}
}
