package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/logging"
)

const maxUploadBytes = 10 << 20

var shareFuncs = map[string]any{
	"add1":      func(i int) int { return i + 1 },
	"shortDate": func(t time.Time) string { return t.Format("Jan 2") },
}

type linkRequest struct {
	Type     consoom.Provider `json:"type" validate:"required,oneof=letterboxd goodreads"`
	Username string           `json:"username" validate:"required,max=200"`
}

type goalRequest struct {
	Type   consoom.MediaType `json:"type" validate:"required,oneof=movie book"`
	Target *int              `json:"target" validate:"required,min=0"`
}

type yearResponse struct {
	Progress *consoom.YearProgress `json:"progress"`
	Media    []consoom.MediaEntry  `json:"media"`
}

type shareData struct {
	Year    int
	Heading string
	Count   string
	Items   []consoom.MediaEntry
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine sentinels onto HTTP statuses. Unknown errors
// are logged and reported generically.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, consoom.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, consoom.ErrStorageUnavailable):
		writeError(w, http.StatusInternalServerError, "Database not available")
	case errors.Is(err, consoom.ErrInvalidProvider), errors.Is(err, consoom.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case consoom.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found")
	default:
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func yearParam(r *http.Request) (int, bool) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1900 || year > 9999 {
		return 0, false
	}
	return year, true
}

// mediaTypeParam accepts both the singular type names and the plural path
// segments used by share links.
func mediaTypeParam(s string) (consoom.MediaType, bool) {
	switch strings.ToLower(s) {
	case "":
		return "", true
	case "movie", "movies":
		return consoom.MediaMovie, true
	case "book", "books":
		return consoom.MediaBook, true
	}
	return "", false
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleCron(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.SyncAll(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.SyncUser(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req consoom.ImportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.engine.ImportBatch(r.Context(), userFromContext(r.Context()), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleImportCSV accepts an export either as multipart field "file" or as
// the raw request body.
func (s *server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	provider := consoom.Provider(r.PathValue("type"))
	if !provider.Valid() {
		writeError(w, http.StatusBadRequest, "invalid provider")
		return
	}

	var body io.Reader = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload")
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer f.Close()
		body = f
	}

	result, err := s.engine.ImportCSV(r.Context(), userFromContext(r.Context()), provider, body)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.engine.GetLinkedAccounts(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !s.decode(w, r, &req) {
		return
	}
	acct, err := s.engine.LinkAccount(r.Context(), userFromContext(r.Context()), req.Type, req.Username)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	err := s.engine.UnlinkAccount(r.Context(), userFromContext(r.Context()), consoom.Provider(r.PathValue("type")))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGoals(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	goals, err := s.engine.GetYearlyGoals(r.Context(), userFromContext(r.Context()), year)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	var req goalRequest
	if !s.decode(w, r, &req) {
		return
	}
	goal, err := s.engine.SetYearlyGoal(r.Context(), userFromContext(r.Context()), year, req.Type, *req.Target)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// handleYear backs the dashboard: goal progress plus the year's log,
// optionally filtered with ?type=.
func (s *server) handleYear(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	mediaType, ok := mediaTypeParam(r.URL.Query().Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}

	uid := userFromContext(r.Context())
	progress, err := s.engine.GetYearProgress(r.Context(), uid, year)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	media, err := s.engine.GetMediaForYear(r.Context(), uid, year, mediaType)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, yearResponse{Progress: progress, Media: media})
}

func (s *server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	media, err := s.engine.GetRecentMedia(r.Context(), userFromContext(r.Context()), limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, media)
}

func (s *server) handleShare(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	mediaType, ok := mediaTypeParam(r.PathValue("type"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	summary, err := s.engine.GetShareSummary(r.Context(), userFromContext(r.Context()), year, mediaType)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	data := shareData{Year: year, Items: summary.Items, Heading: "My " + strconv.Itoa(year)}
	switch mediaType {
	case consoom.MediaMovie:
		data.Heading += " Movies"
		data.Count = plural(summary.MovieCount, "movie")
	case consoom.MediaBook:
		data.Heading += " Books"
		data.Count = plural(summary.BookCount, "book")
	default:
		data.Count = plural(summary.MovieCount, "movie") + " & " + plural(summary.BookCount, "book")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.share.Execute(w, data); err != nil {
		logging.Error().Err(err).Msg("template error")
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
