package world

type Metrics struct {
	Tick          uint64  `json:"tick"`
	Viewers       int     `json:"viewers"`
	Objects       int     `json:"objects"`
	StepMS        float64 `json:"step_ms"`
	StepErrors    uint64  `json:"step_errors"`
	LastTimestamp float64 `json:"last_timestamp"`
}

func (w *World) Metrics() Metrics {
	m, _ := w.metrics.Load().(Metrics)
	return m
}
