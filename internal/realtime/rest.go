package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gensite/internal/generator"
	"gensite/internal/project"
	"gensite/internal/protocol"
	"gensite/internal/watcher"
)

const welcomeMessage = "Welcome to the GENSITE AI API"

type createFileRequest struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

type projectResponse struct {
	Root      string              `json:"root"`
	FileCount int                 `json:"fileCount"`
	Tree      []protocol.FileNode `json:"tree"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// storeErrorStatus maps project store errors onto HTTP status codes.
func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, project.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrInvalidPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := s.project.CreateFile(req.Name, req.Content); err != nil {
		s.logger.Warn("failed to create file", "file", req.Name, "err", err)
		writeError(w, storeErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "File " + req.Name + " created successfully",
	})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	content, err := s.project.ReadFile(name)
	if err != nil {
		status := storeErrorStatus(err)
		if status == http.StatusNotFound {
			writeError(w, status, "File not found")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.project.WriteArchive(&buf); err != nil {
		s.logger.Error("failed to write project archive", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=project.zip")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	var count int
	if s.files != nil {
		count = s.files.Count()
	} else {
		count = s.project.Count()
	}

	tree := s.project.Tree(watcher.DefaultTreeDepth)
	if tree == nil {
		tree = []protocol.FileNode{}
	}
	writeJSON(w, http.StatusOK, projectResponse{
		Root:      s.project.Root(),
		FileCount: count,
		Tree:      tree,
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, generator.Templates())
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	events := []protocol.Event{}
	if s.history != nil {
		recent, err := s.history.Recent(r.Context(), sessionID)
		if err != nil {
			s.logger.Error("failed to load history", "session", sessionID, "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		events = recent
	}
	writeJSON(w, http.StatusOK, events)
}
