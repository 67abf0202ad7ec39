// Command openai-stub is a minimal in-memory stand-in for the OpenAI files
// and vector store endpoints. It lets the openai store run end to end
// without credentials: point OPENAI_BASE_URL at http://localhost:8081/v1.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type vectorStore struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	FileIDs   []string       `json:"-"`
}

type storedFile struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int    `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	content   []byte
}

// stub holds stores and files in memory. Attached files report
// "in_progress" once and "completed" on the next poll, unless their name
// contains failMarker.
type stub struct {
	mu         sync.Mutex
	seq        int
	stores     map[string]*vectorStore
	files      map[string]*storedFile
	polled     map[string]bool
	failMarker string
	now        func() time.Time
}

func newStub(failMarker string) *stub {
	return &stub{
		stores:     map[string]*vectorStore{},
		files:      map[string]*storedFile{},
		polled:     map[string]bool{},
		failMarker: failMarker,
		now:        time.Now,
	}
}

func (s *stub) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%06d", prefix, s.seq)
}

func (s *stub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/vector_stores", s.createStore)
	mux.HandleFunc("POST /v1/files", s.createFile)
	mux.HandleFunc("POST /v1/vector_stores/{store}/files", s.attachFile)
	mux.HandleFunc("GET /v1/vector_stores/{store}/files/{file}", s.retrieveFile)
	mux.HandleFunc("POST /v1/vector_stores/{store}/search", s.search)
	return mux
}

func (s *stub) createStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string         `json:"name"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	s.mu.Lock()
	vs := &vectorStore{ID: s.nextID("vs"), Object: "vector_store", CreatedAt: s.now().Unix(), Name: req.Name, Metadata: req.Metadata}
	s.stores[vs.ID] = vs
	s.mu.Unlock()
	writeJSON(w, vs)
}

func (s *stub) createFile(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	sf := &storedFile{
		ID:        s.nextID("file"),
		Object:    "file",
		Bytes:     len(body),
		CreatedAt: s.now().Unix(),
		Filename:  hdr.Filename,
		Purpose:   r.FormValue("purpose"),
		content:   body,
	}
	s.files[sf.ID] = sf
	s.mu.Unlock()
	log.Debug().Str("file", sf.ID).Str("name", sf.Filename).Int("bytes", sf.Bytes).Msg("file stored")
	writeJSON(w, sf)
}

func (s *stub) vectorStoreFile(vs *vectorStore, f *storedFile, status string) map[string]any {
	return map[string]any{
		"id":              f.ID,
		"object":          "vector_store.file",
		"created_at":      f.CreatedAt,
		"vector_store_id": vs.ID,
		"usage_bytes":     f.Bytes,
		"status":          status,
	}
}

func (s *stub) attachFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID string `json:"file_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, ok := s.stores[r.PathValue("store")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such vector store")
		return
	}
	f, ok := s.files[req.FileID]
	if !ok {
		writeError(w, http.StatusNotFound, "no such file")
		return
	}
	vs.FileIDs = append(vs.FileIDs, f.ID)
	writeJSON(w, s.vectorStoreFile(vs, f, "in_progress"))
}

func (s *stub) retrieveFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, ok := s.stores[r.PathValue("store")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such vector store")
		return
	}
	f, ok := s.files[r.PathValue("file")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such file")
		return
	}
	status := "completed"
	switch {
	case s.failMarker != "" && strings.Contains(f.Filename, s.failMarker):
		status = "failed"
	case !s.polled[f.ID]:
		status = "in_progress"
	}
	s.polled[f.ID] = true
	writeJSON(w, s.vectorStoreFile(vs, f, status))
}

// search ranks attached files by how often the query terms occur in them.
func (s *stub) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	terms := strings.Fields(strings.ToLower(req.Query))

	s.mu.Lock()
	vs, ok := s.stores[r.PathValue("store")]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "no such vector store")
		return
	}
	type hit struct {
		FileID   string  `json:"file_id"`
		Filename string  `json:"filename"`
		Score    float64 `json:"score"`
	}
	var hits []hit
	for _, id := range vs.FileIDs {
		f := s.files[id]
		text := strings.ToLower(string(f.content))
		n := 0
		for _, t := range terms {
			n += strings.Count(text, t)
		}
		if n > 0 {
			hits = append(hits, hit{FileID: f.ID, Filename: f.Filename, Score: float64(n)})
		}
	}
	s.mu.Unlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	writeJSON(w, map[string]any{"object": "vector_store.search_results.page", "search_query": req.Query, "data": hits})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error"},
	})
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	s := newStub(os.Getenv("STUB_FAIL_MARKER"))
	log.Info().Str("addr", addr).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, s.routes()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
