package world

import "twinforge/internal/protocol"

var sensorIDs = []string{"Lidar_1", "Temp_1"}

// SensorIDs lists the sensors every snapshot carries readings for.
func (w *World) SensorIDs() []string {
	out := make([]string, len(sensorIDs))
	copy(out, sensorIDs)
	return out
}

// readSensors produces the auxiliary per-tick readings. They are
// regenerated every tick and never persisted; the noise model matches
// what the viewer UI expects from the mock rig.
func (w *World) readSensors() []protocol.SensorReading {
	return []protocol.SensorReading{
		{ID: sensorIDs[0], Kind: "distance", Value: 9.5 + w.rng.Float64(), Unit: "m"},
		{ID: sensorIDs[1], Kind: "temperature", Value: 20 + 10*w.rng.Float64(), Unit: "C"},
	}
}
