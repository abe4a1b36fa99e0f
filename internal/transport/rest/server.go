package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"twinforge/internal/external/ai"
	"twinforge/internal/external/geodata"
	"twinforge/internal/persistence/indexdb"
	"twinforge/internal/store/assets"
	"twinforge/internal/store/projects"
)

// Server exposes the project, asset and collaborator endpoints. The
// realtime snapshot stream lives in the ws package; everything
// request/response shaped goes through here.
type Server struct {
	assets   *assets.Store
	projects *projects.Store
	index    *indexdb.SQLiteIndex // may be nil
	ai       *ai.Client           // may be nil
	geo      *geodata.Client      // may be nil
	log      *log.Logger
}

func NewServer(a *assets.Store, p *projects.Store, idx *indexdb.SQLiteIndex, aiClient *ai.Client, geo *geodata.Client, logger *log.Logger) *Server {
	return &Server{
		assets:   a,
		projects: p,
		index:    idx,
		ai:       aiClient,
		geo:      geo,
		log:      logger,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/projects/upload-model", s.handleUploadModel)
	mux.HandleFunc("/api/projects/models", s.handleListModels)
	mux.HandleFunc("/api/projects/models/", s.handleServeModel)
	mux.HandleFunc("/api/projects/save", s.handleSave)
	mux.HandleFunc("/api/projects/load", s.handleLoadLast)
	mux.HandleFunc("/api/projects/load/", s.handleLoad)
	mux.HandleFunc("/api/projects/list", s.handleList)
	mux.HandleFunc("/api/projects/stats", s.handleStats)
	mux.HandleFunc("/ai_query", s.handleAIQuery)
	mux.HandleFunc("/api/simulation/zone", s.handleZone)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]any{"success": false, "error": msg})
}

type uploadedModel struct {
	Name           string  `json:"name"`
	FileName       string  `json:"fileName"`
	UniqueFileName string  `json:"uniqueFileName"`
	URL            string  `json:"url"`
	FileSize       int64   `json:"fileSize"`
	Lon            float64 `json:"lon"`
	Lat            float64 `json:"lat"`
	Height         float64 `json:"height"`
	Timestamp      int64   `json:"timestamp"`
}

func (s *Server) handleUploadModel(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, "POST required")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(rw, http.StatusBadRequest, "no file provided")
		return
	}
	defer f.Close()
	if header.Filename == "" {
		writeError(rw, http.StatusBadRequest, "empty filename")
		return
	}

	content, err := io.ReadAll(f)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "read upload")
		return
	}

	stored, err := s.assets.Put(content, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, assets.ErrEmptyFile):
			writeError(rw, http.StatusBadRequest, "empty file")
		case errors.Is(err, assets.ErrTooLarge):
			writeError(rw, http.StatusBadRequest, "file too large")
		case errors.Is(err, assets.ErrBadExtension):
			writeError(rw, http.StatusBadRequest, fmt.Sprintf("unsupported file type %s", filepath.Ext(header.Filename)))
		default:
			s.log.Printf("upload %q: %v", header.Filename, err)
			writeError(rw, http.StatusInternalServerError, "store upload")
		}
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	model := uploadedModel{
		Name:           name,
		FileName:       stored.DisplayName,
		UniqueFileName: stored.Name,
		URL:            "/api/projects/models/" + stored.Name,
		FileSize:       stored.Size,
		Lon:            formFloat(r, "lon", -74.0060),
		Lat:            formFloat(r, "lat", 40.7128),
		Height:         formFloat(r, "height", 100),
		Timestamp:      time.Now().UnixMilli(),
	}
	s.index.RecordAssetUpload(stored.Name, stored.DisplayName, stored.Size)
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "model": model})
}

func formFloat(r *http.Request, key string, def float64) float64 {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (s *Server) handleListModels(rw http.ResponseWriter, r *http.Request) {
	stored, err := s.assets.List()
	if err != nil {
		s.log.Printf("list models: %v", err)
		writeError(rw, http.StatusInternalServerError, "list models")
		return
	}
	type modelEntry struct {
		FileName       string `json:"fileName"`
		UniqueFileName string `json:"uniqueFileName"`
		URL            string `json:"url"`
		FileSize       int64  `json:"fileSize"`
	}
	models := make([]modelEntry, 0, len(stored))
	for _, m := range stored {
		models = append(models, modelEntry{
			FileName:       m.DisplayName,
			UniqueFileName: m.Name,
			URL:            "/api/projects/models/" + m.Name,
			FileSize:       m.Size,
		})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "models": models})
}

func (s *Server) handleServeModel(rw http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/api/projects/models/")
	path, err := s.assets.Path(filename)
	if err != nil {
		writeError(rw, http.StatusNotFound, "model not found")
		return
	}
	http.ServeFile(rw, r, path)
}

func (s *Server) handleSave(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, "POST required")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(rw, http.StatusBadRequest, "read body")
		return
	}
	if err := projects.ValidateDocument(raw); err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	var p projects.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		writeError(rw, http.StatusBadRequest, "malformed document")
		return
	}

	id, err := s.projects.Save(p, r.URL.Query().Get("project_id"))
	if err != nil {
		s.log.Printf("save project: %v", err)
		writeError(rw, http.StatusInternalServerError, "save project")
		return
	}
	s.index.RecordProjectSave(id, p.Name)
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":   true,
		"projectId": id,
		"message":   "Project saved successfully",
	})
}

func (s *Server) handleLoadLast(rw http.ResponseWriter, r *http.Request) {
	p, err := s.projects.LoadLast()
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			writeError(rw, http.StatusNotFound, "no saved project found")
			return
		}
		s.log.Printf("load last project: %v", err)
		writeError(rw, http.StatusInternalServerError, "load project")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "project": p})
}

func (s *Server) handleLoad(rw http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/projects/load/")
	if projectID, script, ok := strings.Cut(id, "/scripts/"); ok {
		s.serveScript(rw, projectID, script)
		return
	}
	p, err := s.projects.Load(id)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			writeError(rw, http.StatusNotFound, "project not found")
			return
		}
		s.log.Printf("load project %q: %v", id, err)
		writeError(rw, http.StatusInternalServerError, "load project")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "project": p})
}

// serveScript returns one saved script body as plain text.
func (s *Server) serveScript(rw http.ResponseWriter, projectID, name string) {
	body, err := s.projects.Script(projectID, name)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			writeError(rw, http.StatusNotFound, "script not found")
			return
		}
		s.log.Printf("load script %s/%s: %v", projectID, name, err)
		writeError(rw, http.StatusInternalServerError, "load script")
		return
	}
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = rw.Write(body)
}

func (s *Server) handleList(rw http.ResponseWriter, r *http.Request) {
	items, err := s.projects.List()
	if err != nil {
		s.log.Printf("list projects: %v", err)
		writeError(rw, http.StatusInternalServerError, "list projects")
		return
	}
	if items == nil {
		items = []projects.ListItem{}
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "projects": items})
}

func (s *Server) handleStats(rw http.ResponseWriter, r *http.Request) {
	projCount, projBytes, err := s.projects.Stats()
	if err != nil {
		s.log.Printf("project stats: %v", err)
		writeError(rw, http.StatusInternalServerError, "stats")
		return
	}
	modelCount, modelBytes, err := s.assets.Stats()
	if err != nil {
		s.log.Printf("asset stats: %v", err)
		writeError(rw, http.StatusInternalServerError, "stats")
		return
	}
	storageMB := float64(projBytes+modelBytes) / (1024 * 1024)
	writeJSON(rw, http.StatusOK, map[string]any{
		"projects":  projCount,
		"models":    modelCount,
		"storageMB": storageMB,
	})
}

func (s *Server) handleAIQuery(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var payload struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil || payload.Query == "" {
		writeError(rw, http.StatusBadRequest, "no query provided")
		return
	}

	if !s.ai.Configured() {
		writeJSON(rw, http.StatusOK, map[string]any{
			"message": "AI module not configured. Echo: " + payload.Query,
			"success": false,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	result, err := s.ai.Complete(ctx, payload.Query)
	if err != nil {
		// Collaborator trouble is not a server error for the caller.
		s.log.Printf("ai query failed: %v", err)
		writeJSON(rw, http.StatusOK, map[string]any{
			"message": "AI module unavailable. Echo: " + payload.Query,
			"success": false,
		})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"message": result, "success": true})
}

func (s *Server) handleZone(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(rw, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius, _ := strconv.ParseFloat(q.Get("radius"), 64)

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	writeJSON(rw, http.StatusOK, s.geo.Resolve(ctx, lat, lng, radius))
}
