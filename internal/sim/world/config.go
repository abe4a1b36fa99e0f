package world

type Config struct {
	TickRateHz  int
	ClientQueue int
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.ClientQueue <= 0 {
		c.ClientQueue = 8
	}
}
