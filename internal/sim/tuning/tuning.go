package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz    int     `yaml:"tick_rate_hz"`
	Gravity       float64 `yaml:"gravity"`
	SendTimeoutMs int     `yaml:"send_timeout_ms"`
	ClientQueue   int     `yaml:"client_queue"`

	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`

	Objects []SeedObject `yaml:"objects"`

	AIBaseURL         string `yaml:"ai_base_url"`
	AIModel           string `yaml:"ai_model"`
	OverpassURL       string `yaml:"overpass_url"`
	ExternalTimeoutMs int    `yaml:"external_timeout_ms"`
}

// SeedObject is registered into the world at startup.
type SeedObject struct {
	ID   string     `yaml:"id"`
	Pos  [3]float64 `yaml:"pos"`
	Mass float64    `yaml:"mass"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

func (t *Tuning) ApplyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 10
	}
	if t.Gravity == 0 {
		t.Gravity = -9.81
	}
	if t.SendTimeoutMs <= 0 {
		t.SendTimeoutMs = 5000
	}
	if t.ClientQueue <= 0 {
		t.ClientQueue = 8
	}
	if t.MaxUploadBytes <= 0 {
		t.MaxUploadBytes = 100 << 20
	}
	if len(t.AllowedExtensions) == 0 {
		t.AllowedExtensions = []string{
			".gltf", ".glb", ".obj", ".fbx", ".dae", ".stl", ".ply", ".urdf", ".sdf",
		}
	}
	if len(t.Objects) == 0 {
		t.Objects = []SeedObject{
			{ID: "Drone_Alpha", Pos: [3]float64{0, 100, 0}, Mass: 1.5},
			{ID: "robot_01", Pos: [3]float64{0, 5, 0}, Mass: 50},
			{ID: "robot_02", Pos: [3]float64{2, 10, 1}, Mass: 30},
		}
	}
	if t.AIBaseURL == "" {
		t.AIBaseURL = "https://api.openai.com"
	}
	if t.AIModel == "" {
		t.AIModel = "gpt-4.1"
	}
	if t.OverpassURL == "" {
		t.OverpassURL = "https://overpass-api.de/api/interpreter"
	}
	if t.ExternalTimeoutMs <= 0 {
		t.ExternalTimeoutMs = 10000
	}
}
