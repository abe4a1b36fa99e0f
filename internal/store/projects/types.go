package projects

// Project is the full document a viewer saves: scripts, placed models,
// scene entities and editor state. Field names follow the wire format
// the IDE produces (camelCase).
type Project struct {
	Version     int               `json:"version"`
	Name        string            `json:"name"`
	SavedAt     string            `json:"savedAt"`
	Scripts     map[string]string `json:"scripts"`
	Models      []ModelMetadata   `json:"models"`
	Entities    []Entity          `json:"entities"`
	UIState     UIState           `json:"uiState"`
	CameraState *CameraState      `json:"cameraState,omitempty"`
}

// ModelMetadata references an uploaded asset by its stored filename plus
// a world placement.
type ModelMetadata struct {
	Name           string  `json:"name"`
	Lon            float64 `json:"lon"`
	Lat            float64 `json:"lat"`
	Height         float64 `json:"height"`
	FileName       string  `json:"fileName"`
	UniqueFileName string  `json:"uniqueFileName"`
	FileSize       int64   `json:"fileSize"`
	Timestamp      int64   `json:"timestamp"`
}

type Entity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Lon        float64        `json:"lon"`
	Lat        float64        `json:"lat"`
	Height     float64        `json:"height"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type UIState struct {
	CurrentFile      string `json:"currentFile"`
	SidebarCollapsed bool   `json:"sidebarCollapsed"`
	ActiveTab        string `json:"activeTab"`
}

type CameraState struct {
	Position map[string]float64 `json:"position"`
	Heading  float64            `json:"heading"`
	Pitch    float64            `json:"pitch"`
	Roll     float64            `json:"roll"`
}

// ListItem summarizes one project without its script bodies.
type ListItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LastSaved   string `json:"lastSaved"`
	ModelCount  int    `json:"modelCount"`
	ScriptCount int    `json:"scriptCount"`
}
