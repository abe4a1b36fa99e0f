package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"twinforge/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/ws", "ws url")
		ticks   = flag.Int("ticks", 0, "exit after this many snapshots (0 = run forever)")
		request = flag.Bool("request", false, "send a request_data after connecting")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[probe] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	seen := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeServerInfo:
			var info protocol.ServerInfoMsg
			if err := json.Unmarshal(msg, &info); err != nil {
				continue
			}
			logger.Printf("connected session=%s tick_rate=%dHz gravity=%.2f", info.SessionID, info.TickRateHz, info.Gravity)
			if *request {
				if err := conn.WriteJSON(protocol.RequestMsg{Type: protocol.TypeRequestData}); err != nil {
					logger.Fatalf("send request_data: %v", err)
				}
			}

		case protocol.TypeState:
			var state protocol.StateMsg
			if err := json.Unmarshal(msg, &state); err != nil {
				continue
			}
			seen++
			logger.Printf("t=%.3f objects=%d sensors=%d", state.Timestamp, len(state.Objects), len(state.Sensors))
			for _, obj := range state.Objects {
				logger.Printf("  %s pos=(%.2f, %.2f, %.2f)", obj.ID, obj.Pos[0], obj.Pos[1], obj.Pos[2])
			}
			if *ticks > 0 && seen >= *ticks {
				return
			}
		}
	}
}
