package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stevecastle/vdr/commands"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// WSRequest is one call over the socket. ID is echoed in the response so
// calls can be answered out of order.
type WSRequest struct {
	ID        string `json:"id"`
	Command   string `json:"command"`
	FilePath  string `json:"file_path"`
	FilePath2 string `json:"filePath,omitempty"`
}

// WSResponse answers a WSRequest. Data is base64 in JSON.
type WSResponse struct {
	ID      string               `json:"id"`
	OK      bool                 `json:"ok"`
	Message string               `json:"message,omitempty"`
	Data    []byte               `json:"data,omitempty"`
	Files   []commands.FileEntry `json:"files,omitempty"`
	Error   string               `json:"error,omitempty"`
	Status  int                  `json:"status"`
}

// sameOrigin accepts requests without an Origin header (native clients) and
// browser requests whose Origin host matches the bridge host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// WebSocketHandler serves GET /ws. Requests on one connection run
// concurrently; responses are written as each finishes.
func (b *Bridge) WebSocketHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     sameOrigin,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn().Err(err).Msg("failed to upgrade WebSocket connection")
			return
		}
		b.serveConn(r.Context(), conn)
	}
}

func (b *Bridge) serveConn(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	var (
		writeMu sync.Mutex
		pending sync.WaitGroup
	)
	defer func() {
		cancel()
		pending.Wait()
		conn.Close()
	}()

	write := func(resp WSResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			b.log.Debug().Err(err).Str("id", resp.ID).Msg("websocket write failed")
		}
	}

	conn.SetReadLimit(MaxRequestBody)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	pending.Add(1)
	go func() {
		defer pending.Done()
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}

		var req WSRequest
		if err := json.Unmarshal(data, &req); err != nil {
			write(WSResponse{Error: "bad json: " + err.Error(), Status: http.StatusBadRequest})
			continue
		}

		pending.Add(1)
		go func(req WSRequest) {
			defer pending.Done()
			args := request{FilePath: req.FilePath, FilePath2: req.FilePath2}.args()
			res, err := b.Call(ctx, req.Command, args)
			write(toWSResponse(req.ID, res, err))
		}(req)
	}
}

func toWSResponse(id string, res commands.Result, err error) WSResponse {
	if err != nil {
		return WSResponse{ID: id, Error: errorText(err), Status: StatusFor(err)}
	}
	resp := WSResponse{ID: id, OK: true, Status: http.StatusOK}
	switch {
	case res.Binary:
		resp.Data = res.Data
	case res.List:
		resp.Files = res.Files
	default:
		resp.Message = res.Text
	}
	return resp
}
