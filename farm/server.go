package farm

import (
	j "encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"
	"github.com/jinzhu/copier"

	"github.com/GoFlashTools/goflash/artifact"
	"github.com/GoFlashTools/goflash/types"
)

// Serve wires up the JSON-RPC and REST surface and blocks on the
// listener.
func (f *Farm) Serve() error {
	s := rpc.NewServer()
	s.RegisterCodec(json.NewCodec(), "application/json")
	s.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	s.RegisterService(f, "farm")

	r := f.Router(s)
	log.Print("Farm listening on ", f.Listen)
	return http.ListenAndServe(f.Listen, r)
}

// Router builds the HTTP routes; split out so tests can drive the
// handlers without a listener.
func (f *Farm) Router(rpcServer http.Handler) *mux.Router {
	r := mux.NewRouter()
	if rpcServer != nil {
		r.Handle("/rpc", rpcServer)
	}
	r.HandleFunc("/goflash/f_status", f.GetStatus)
	r.HandleFunc("/goflash/f_ctrl", f.Ctrl)
	return r
}

type FlashRPCArgs struct {
	Board   string
	Profile string
}

type FlashRPCReply struct {
	Image  string
	SHA256 string
}

// FlashBoard is the JSON-RPC entry point for flashing one board.
func (f *Farm) FlashBoard(r *http.Request, args *FlashRPCArgs, reply *FlashRPCReply) error {
	profile := args.Profile
	if profile == "" {
		profile = artifact.ProfileRelease
	}
	if err := f.FlashSlot(args.Board, profile); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	slot, err := f.findSlot(args.Board)
	if err != nil {
		return err
	}
	reply.Image = slot.states.Image
	reply.SHA256 = slot.states.ImageSHA256
	return nil
}

type ResetRPCArgs struct {
	Board string
}

type ResetRPCReply struct {
	Done bool
}

// ResetBoard is the JSON-RPC entry point for resetting one board.
func (f *Farm) ResetBoard(r *http.Request, args *ResetRPCArgs, reply *ResetRPCReply) error {
	if err := f.ResetSlot(args.Board); err != nil {
		return err
	}
	reply.Done = true
	return nil
}

// GetStatus reports every slot's state as JSON.
func (f *Farm) GetStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	var boardsInfo []*types.BoardStates
	for _, slot := range f.slots {
		// Hand out a snapshot, not the live struct.
		var snap types.BoardStates
		copier.Copy(&snap, slot.states)
		snap.Throughput[0] = slot.tp.RecentNAvg(60)
		snap.Throughput[1] = slot.tp.RecentNAvg(300)
		snap.Throughput[2] = slot.tp.RecentNAvg(3600)
		boardsInfo = append(boardsInfo, &snap)
	}
	f.mu.Unlock()

	data := &types.StatusReply{
		Status: &types.FarmStatus{
			Boards: boardsInfo,
			FarmUp: true,
			Time:   time.Now().Unix(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	j.NewEncoder(w).Encode(data)
}

// Ctrl handles plain GET control requests:
// /goflash/f_ctrl?command=flash&board=nucleo-f429zi&profile=release
func (f *Farm) Ctrl(w http.ResponseWriter, r *http.Request) {
	cmds, ok := r.URL.Query()["command"]
	if !ok || len(cmds[0]) < 1 {
		http.Error(w, "url param 'command' is missing", http.StatusBadRequest)
		return
	}

	boardName := r.URL.Query().Get("board")
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = artifact.ProfileRelease
	}

	var err error
	switch cmds[0] {
	case "flash":
		err = f.FlashSlot(boardName, profile)
	case "reset":
		err = f.ResetSlot(boardName)
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}

	if err != nil {
		log.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
