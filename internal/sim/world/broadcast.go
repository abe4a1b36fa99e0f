package world

import (
	"encoding/json"

	"twinforge/internal/protocol"
)

func marshalState(state protocol.StateMsg) ([]byte, error) {
	return json.Marshal(state)
}

// broadcast fans one marshaled snapshot out to every registered viewer.
// A connection that has already failed (writer closed it) is deregistered
// here; that never stops delivery to the rest or the next tick.
func (w *World) broadcast(b []byte, ts float64) {
	w.registry.ForEach(func(c *Conn) {
		if err := c.Push(b, ts); err != nil {
			w.registry.Remove(c.ID())
		}
	})
}
