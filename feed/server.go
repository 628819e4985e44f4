package feed

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/colorfulnotion/feauxviz/log"
)

//go:embed viewer.html
var viewerHTML []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn(log.FeedMonitoring, "feed: websocket upgrade failed", "err", err)
			return
		}
		select {
		case hub.register <- conn:
		case <-hub.done:
			conn.Close()
			return
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case hub.unregister <- conn:
				case <-hub.done:
				}
				return
			}
			var cmd Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				log.Debug(log.FeedMonitoring, "feed: bad command", "data", string(data))
				continue
			}
			select {
			case hub.commands <- cmd:
			default:
				log.Warn(log.FeedMonitoring, "feed: command queue full", "op", cmd.Op)
			}
		}
	}
}

// NewServeMux serves the viewer page at / and the feed at /ws. extra adds
// more handlers, such as a report page.
func NewServeMux(hub *Hub, extra map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write(viewerHTML)
	})
	mux.HandleFunc("/ws", wsHandler(hub))
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	return mux
}
