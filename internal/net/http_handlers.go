// Package net exposes the relay's HTTP surface: health, diagnostics, the
// relay's public key for peers to pin, and the websocket endpoint.
package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"skirmish/internal/telemetry"
)

// HTTPHandlerConfig wires the pieces the HTTP surface reports on. Nil funcs
// degrade to zero values so a partially wired server still answers.
type HTTPHandlerConfig struct {
	WSHandler   nethttp.HandlerFunc
	RelayKeyPEM []byte
	TickRate    int
	Frame       func() uint64
	Buffered    func() int
	Subscribers func() int
	Telemetry   func() map[string]uint64
	Logger      telemetry.Logger
}

// NewHTTPHandler builds the relay's HTTP mux.
func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	frame := cfg.Frame
	if frame == nil {
		frame = func() uint64 { return 0 }
	}
	buffered := cfg.Buffered
	if buffered == nil {
		buffered = func() int { return 0 }
	}
	subscribers := cfg.Subscribers
	if subscribers == nil {
		subscribers = func() int { return 0 }
	}
	snapshot := cfg.Telemetry
	if snapshot == nil {
		snapshot = func() map[string]uint64 { return map[string]uint64{} }
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/relay/key", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if len(cfg.RelayKeyPEM) == 0 {
			httpError(w, "key unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/x-pem-file")
		w.Write(cfg.RelayKeyPEM)
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status      string            `json:"status"`
			ServerTime  int64             `json:"serverTime"`
			Frame       uint64            `json:"frame"`
			TickRate    int               `json:"tickRate"`
			Buffered    int               `json:"buffered"`
			Subscribers int               `json:"subscribers"`
			Telemetry   map[string]uint64 `json:"telemetry"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			Frame:       frame(),
			TickRate:    cfg.TickRate,
			Buffered:    buffered(),
			Subscribers: subscribers(),
			Telemetry:   snapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if cfg.WSHandler != nil {
		mux.HandleFunc("/ws", cfg.WSHandler)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
