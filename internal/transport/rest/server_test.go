package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"twinforge/internal/store/assets"
	"twinforge/internal/store/projects"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	a, err := assets.Open(dir+"/models", 100<<20, []string{".glb", ".gltf", ".obj"})
	if err != nil {
		t.Fatalf("assets.Open: %v", err)
	}
	p, err := projects.Open(dir + "/projects")
	if err != nil {
		t.Fatalf("projects.Open: %v", err)
	}
	s := NewServer(a, p, nil, nil, nil, log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	s.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func uploadFile(t *testing.T, url, filename string, content []byte) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = mw.WriteField("name", "Test Model")
	_ = mw.WriteField("lon", "13.405")
	_ = mw.WriteField("lat", "52.52")
	mw.Close()

	resp, err := http.Post(url+"/api/projects/upload-model", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return resp, out
}

func TestUploadModel_RoundTrip(t *testing.T) {
	srv := newTestServer(t)
	content := []byte("glTF-binary-bytes")

	resp, out := uploadFile(t, srv.URL, "drone.glb", content)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, out)
	}
	model, ok := out["model"].(map[string]any)
	if !ok || out["success"] != true {
		t.Fatalf("unexpected response %v", out)
	}
	if model["name"] != "Test Model" || model["fileName"] != "drone.glb" {
		t.Fatalf("unexpected model %v", model)
	}
	if model["lon"] != 13.405 || model["lat"] != 52.52 || model["height"] != 100.0 {
		t.Fatalf("unexpected placement %v", model)
	}
	unique, _ := model["uniqueFileName"].(string)
	if !strings.HasSuffix(unique, "_drone.glb") {
		t.Fatalf("unexpected unique name %q", unique)
	}

	// Stored bytes come back through the models route.
	got, err := http.Get(srv.URL + "/api/projects/models/" + unique)
	if err != nil {
		t.Fatalf("GET model: %v", err)
	}
	defer got.Body.Close()
	b, _ := io.ReadAll(got.Body)
	if got.StatusCode != http.StatusOK || !bytes.Equal(b, content) {
		t.Fatalf("model fetch mismatch: status=%d len=%d", got.StatusCode, len(b))
	}
}

func TestUploadModel_RejectsBadExtension(t *testing.T) {
	srv := newTestServer(t)
	resp, out := uploadFile(t, srv.URL, "malware.exe", []byte("MZ"))
	if resp.StatusCode != http.StatusBadRequest || out["success"] != false {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, out)
	}
}

func TestUploadModel_RequiresFile(t *testing.T) {
	srv := newTestServer(t)
	resp, out := postJSON(t, srv.URL+"/api/projects/upload-model", "{}")
	if resp.StatusCode != http.StatusBadRequest || out["success"] != false {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, out)
	}
}

func TestServeModel_UnknownIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/projects/models/nope.glb")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t)

	resp, out := getJSON(t, srv.URL+"/api/projects/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty list: %d %v", resp.StatusCode, out)
	}
	if models, _ := out["models"].([]any); len(models) != 0 {
		t.Fatalf("expected empty list, got %v", out)
	}

	uploadFile(t, srv.URL, "rover.glb", []byte("rover-bytes"))
	uploadFile(t, srv.URL, "crane.obj", []byte("v 0 0 0"))

	resp, out = getJSON(t, srv.URL+"/api/projects/models")
	if resp.StatusCode != http.StatusOK || out["success"] != true {
		t.Fatalf("list models: %d %v", resp.StatusCode, out)
	}
	models, _ := out["models"].([]any)
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %v", out)
	}
	// Sorted by display name: crane.obj before rover.glb.
	first, _ := models[0].(map[string]any)
	second, _ := models[1].(map[string]any)
	if first["fileName"] != "crane.obj" || second["fileName"] != "rover.glb" {
		t.Fatalf("unexpected order: %v, %v", first, second)
	}
	if url, _ := first["url"].(string); !strings.HasPrefix(url, "/api/projects/models/") {
		t.Fatalf("missing url in %v", first)
	}
}

const sampleDocument = `{
	"version": 1,
	"name": "Harbor Crane",
	"savedAt": "2026-09-01T10:00:00Z",
	"scripts": {"main.js": "console.log('hi')"},
	"models": [],
	"entities": [],
	"uiState": {"currentFile": "main.js", "sidebarCollapsed": false, "activeTab": "editor"}
}`

func TestSaveLoadListProject(t *testing.T) {
	srv := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/api/projects/save", sampleDocument)
	if resp.StatusCode != http.StatusOK || out["success"] != true {
		t.Fatalf("save failed: %d %v", resp.StatusCode, out)
	}
	id, _ := out["projectId"].(string)
	if !strings.HasPrefix(id, "project_") {
		t.Fatalf("unexpected project id %q", id)
	}

	resp, out = getJSON(t, srv.URL+"/api/projects/load/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load by id: %d %v", resp.StatusCode, out)
	}
	proj, _ := out["project"].(map[string]any)
	if proj["name"] != "Harbor Crane" {
		t.Fatalf("unexpected project %v", proj)
	}

	resp, out = getJSON(t, srv.URL+"/api/projects/load")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load last: %d %v", resp.StatusCode, out)
	}

	resp, out = getJSON(t, srv.URL+"/api/projects/list")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %v", resp.StatusCode, out)
	}
	items, _ := out["projects"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 project, got %v", out)
	}
}

func TestLoadScript(t *testing.T) {
	srv := newTestServer(t)

	_, out := postJSON(t, srv.URL+"/api/projects/save", sampleDocument)
	id, _ := out["projectId"].(string)

	resp, err := http.Get(srv.URL + "/api/projects/load/" + id + "/scripts/main.js")
	if err != nil {
		t.Fatalf("GET script: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "console.log('hi')" {
		t.Fatalf("script fetch: status=%d body=%q", resp.StatusCode, body)
	}

	missing, err := http.Get(srv.URL + "/api/projects/load/" + id + "/scripts/nope.js")
	if err != nil {
		t.Fatalf("GET missing script: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing script, got %d", missing.StatusCode)
	}
}

func TestSaveProject_RejectsInvalidDocument(t *testing.T) {
	srv := newTestServer(t)
	resp, out := postJSON(t, srv.URL+"/api/projects/save", `{"name": "missing required fields"}`)
	if resp.StatusCode != http.StatusBadRequest || out["success"] != false {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, out)
	}
}

func TestLoadLast_EmptyIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, out := getJSON(t, srv.URL+"/api/projects/load")
	if resp.StatusCode != http.StatusNotFound || out["success"] != false {
		t.Fatalf("expected 404, got %d %v", resp.StatusCode, out)
	}
}

func TestStats_CountsBothStores(t *testing.T) {
	srv := newTestServer(t)
	uploadFile(t, srv.URL, "crane.obj", []byte("v 0 0 0"))
	postJSON(t, srv.URL+"/api/projects/save", sampleDocument)

	resp, out := getJSON(t, srv.URL+"/api/projects/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %v", resp.StatusCode, out)
	}
	if out["projects"] != 1.0 || out["models"] != 1.0 {
		t.Fatalf("unexpected stats %v", out)
	}
	if _, ok := out["storageMB"].(float64); !ok {
		t.Fatalf("missing storageMB in %v", out)
	}
}

func TestAIQuery_EchoFallbackWhenUnconfigured(t *testing.T) {
	srv := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/ai_query", `{"query": "lift the crane"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	msg, _ := out["message"].(string)
	if out["success"] != false || !strings.Contains(msg, "Echo: lift the crane") {
		t.Fatalf("unexpected response %v", out)
	}

	resp, out = postJSON(t, srv.URL+"/ai_query", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d %v", resp.StatusCode, out)
	}
}

func TestZone_EmptyFallbackWithoutCollaborator(t *testing.T) {
	srv := newTestServer(t)

	resp, out := getJSON(t, srv.URL+"/api/simulation/zone?lat=52.52&lng=13.405&radius=200")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	elements, ok := out["elements"].([]any)
	if !ok || len(elements) != 0 {
		t.Fatalf("expected empty elements array, got %v", out)
	}
	if out["lat"] != 52.52 || out["radius"] != 200.0 {
		t.Fatalf("unexpected zone %v", out)
	}

	resp, _ = getJSON(t, srv.URL+"/api/simulation/zone")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without coords, got %d", resp.StatusCode)
	}
}
