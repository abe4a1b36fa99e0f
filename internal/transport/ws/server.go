package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"twinforge/internal/protocol"
	"twinforge/internal/sim/world"
)

type Config struct {
	Gravity     float64
	SendTimeout time.Duration
	ReadTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
}

type Server struct {
	world *world.World
	log   *log.Logger
	cfg   Config

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, cfg Config, logger *log.Logger) *Server {
	cfg.applyDefaults()
	return &Server{
		world: w,
		log:   logger,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		wsConn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer wsConn.Close()

		id := uuid.NewString()
		viewer := world.NewConn(id, s.world.Config().ClientQueue)
		if !s.world.Registry().Add(viewer) {
			return
		}
		defer func() {
			viewer.Close()
			s.world.Registry().Remove(id)
		}()
		s.log.Printf("viewer %s connected from %s", id, r.RemoteAddr)

		if err := s.writeJSON(wsConn, protocol.ServerInfoMsg{
			Type:            protocol.TypeServerInfo,
			ProtocolVersion: protocol.Version,
			SessionID:       id,
			TickRateHz:      s.world.Config().TickRateHz,
			Gravity:         s.cfg.Gravity,
		}); err != nil {
			return
		}
		// New viewers get the current snapshot without waiting a tick.
		if latest, ts := s.world.LatestFrame(); latest != nil {
			_ = viewer.Push(latest, ts)
		}

		// Writer goroutine: the only thing that writes frames after the
		// server_info, so per-connection order follows the queue.
		go func() {
			for {
				select {
				case <-viewer.Done():
					_ = wsConn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					_ = wsConn.Close()
					return
				case b := <-viewer.Out():
					_ = wsConn.SetWriteDeadline(time.Now().Add(s.cfg.SendTimeout))
					if err := wsConn.WriteMessage(websocket.TextMessage, b); err != nil {
						viewer.Close()
						_ = wsConn.Close()
						return
					}
				}
			}
		}()

		// Reader loop doubles as keep-alive: a viewer that goes silent
		// past the read deadline is dropped.
		for {
			_ = wsConn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			_, msg, err := wsConn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeRequestData {
				continue
			}
			if latest, ts := s.world.LatestFrame(); latest != nil {
				_ = viewer.Push(latest, ts)
			}
		}

		s.log.Printf("viewer %s disconnected", id)
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.SendTimeout))
	return conn.WriteJSON(v)
}
