package rpc

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1 << 10,
	WriteBufferSize: 1 << 10,
}

// WebSocket serves one JSON-RPC request per text message.
func WebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer c.Close()

	for {
		mtype, reader, err := c.NextReader()
		if err != nil {
			break
		}

		res := newRequest(reader).Call()

		writer, err := c.NextWriter(mtype)
		if err != nil {
			slog.Error("rpc websocket writer", slog.Any("err", err))
			break
		}

		io.Copy(writer, res)
		writer.Close()
	}
}

// Post serves a JSON-RPC request over plain HTTP.
func Post(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	res := newRequest(r.Body).Call()

	w.Header().Set("Content-Type", "application/json")
	io.Copy(w, res)
}
