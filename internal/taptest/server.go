// Package taptest provides an in-process fake of the KOA services for
// tests: the TAP async/sync endpoints, login, makeQuery, calibration and
// level-1 lists, file retrieval and the object name resolver.
package taptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// SessionCookie is the cookie set by a successful login.
const SessionCookie = "KOA_SESSION"

// ListEntry is one row of a calibration or level-1 list.
type ListEntry struct {
	KOAID      string `json:"koaid"`
	Instrument string `json:"instrument"`
	Filehand   string `json:"filehand"`
}

// Server is a fake archive. Configure its fields before issuing requests;
// they are read under the server's lock.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Phases returned by successive status requests of each job; the last
	// one repeats.
	Phases []string
	// ErrorMessage is reported by jobs in ERROR.
	ErrorMessage string
	// Result is served for completed jobs and sync queries.
	Result string
	// ResultType is the Content-Type of Result.
	ResultType string

	Users     map[string]string // userid -> password
	Queries   map[string]string // instrument -> ADQL from makeQuery
	Objects   map[string][2]string
	Files     map[string]string // filehand -> content
	Calib     map[string][]ListEntry
	Lev1      map[string][]ListEntry
	Forbidden map[string]bool // filehands that need a session cookie

	jobs     int
	polls    map[string]int
	hits     map[string]int
	files    map[string]int
	lastForm url.Values
	lastArgs map[string]url.Values
}

// New starts a fake archive that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Phases:     []string{"COMPLETED"},
		ResultType: "text/plain",
		Users:      map[string]string{},
		Queries:    map[string]string{},
		Objects:    map[string][2]string{},
		Files:      map[string]string{},
		Calib:      map[string][]ListEntry{},
		Lev1:       map[string][]ListEntry{},
		Forbidden:  map[string]bool{},
		polls:      map[string]int{},
		hits:       map[string]int{},
		files:      map[string]int{},
		lastArgs:   map[string]url.Values{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Configure runs fn with the server locked.
func (s *Server) Configure(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Hits reports how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// FileRequests reports how many times filehand was downloaded.
func (s *Server) FileRequests(filehand string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[filehand]
}

// LastForm returns the form of the latest TAP submission.
func (s *Server) LastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm
}

// LastArgs returns the query arguments of the latest request to path.
func (s *Server) LastArgs(path string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastArgs[path]
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/TAP", func(r chi.Router) {
		r.Post("/async", s.handleAsync)
		r.Post("/sync", s.handleSync)
		r.Get("/async/{jobID}", s.handleJob)
		r.Get("/async/{jobID}/results/result", s.handleResult)
	})
	r.Route("/cgi-bin", func(r chi.Router) {
		r.Get("/KoaAPI/nph-koaLogin", s.handleLogin)
		r.Get("/KoaAPI/nph-makeQuery", s.handleMakeQuery)
		r.Get("/KoaAPI/nph-getCaliblist", s.handleList(func(s *Server) map[string][]ListEntry { return s.Calib }))
		r.Get("/KoaAPI/nph-getLev1list", s.handleList(func(s *Server) map[string][]ListEntry { return s.Lev1 }))
		r.Get("/getKOA/nph-getKOA", s.handleFile)
		r.Get("/Lookup/nph-lookup", s.handleLookup)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.lastArgs[r.URL.Path] = r.URL.Query()
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "msg": msg})
}

func (s *Server) handleAsync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.jobs++
	id := fmt.Sprintf("job%d", s.jobs)
	s.lastForm = r.PostForm
	s.mu.Unlock()

	if strings.TrimSpace(r.PostForm.Get("query")) == "" {
		jsonError(w, http.StatusBadRequest, "missing query")
		return
	}
	w.Header().Set("Location", "/TAP/async/"+id)
	w.WriteHeader(http.StatusSeeOther)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.lastForm = r.PostForm
	body, contentType := s.Result, s.ResultType
	s.mu.Unlock()

	w.Header().Set("Content-Type", contentType)
	_, _ = fmt.Fprint(w, body)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	s.mu.Lock()
	idx := s.polls[id]
	s.polls[id]++
	if idx >= len(s.Phases) {
		idx = len(s.Phases) - 1
	}
	phase := s.Phases[idx]
	errMsg := s.ErrorMessage
	s.mu.Unlock()

	var extra string
	switch phase {
	case "COMPLETED":
		extra = fmt.Sprintf(`<uws:results><uws:result id="result" xlink:href="%s/TAP/async/%s/results/result"/></uws:results>`, s.URL, id)
	case "ERROR":
		extra = fmt.Sprintf(`<uws:errorSummary type="fatal"><uws:message>%s</uws:message></uws:errorSummary>`, errMsg)
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<uws:job xmlns:uws="http://www.ivoa.net/xml/UWS/v1.0" xmlns:xlink="http://www.w3.org/1999/xlink">
<uws:jobId>%s</uws:jobId><uws:processId>fake</uws:processId><uws:phase>%s</uws:phase>%s
</uws:job>`, id, phase, extra)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body, contentType := s.Result, s.ResultType
	s.mu.Unlock()

	w.Header().Set("Content-Type", contentType)
	_, _ = fmt.Fprint(w, body)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userid")
	// The client percent-encodes the password once more than the query
	// string needs.
	password, err := url.PathUnescape(r.URL.Query().Get("password"))
	if err != nil {
		jsonError(w, http.StatusOK, "bad password encoding")
		return
	}

	s.mu.Lock()
	want, ok := s.Users[userID]
	s.mu.Unlock()

	if !ok || want != password {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "msg": "Incorrect userid or password"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "session-" + userID, Path: "/", MaxAge: 3600})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "msg": "Successfully login as " + userID})
}

func (s *Server) handleMakeQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	instrument := strings.ToUpper(q.Get("instrument"))

	s.mu.Lock()
	adql, ok := s.Queries[instrument]
	s.mu.Unlock()

	if !ok {
		jsonError(w, http.StatusOK, "instrument "+q.Get("instrument")+" not supported")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, adql)
}

func (s *Server) handleList(pick func(*Server) map[string][]ListEntry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		koaid := r.URL.Query().Get("koaid")
		s.mu.Lock()
		entries, ok := pick(s)[koaid]
		s.mu.Unlock()

		if !ok {
			jsonError(w, http.StatusOK, "no list for "+koaid)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"table": entries})
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	filehand := r.URL.Query().Get("filehand")

	s.mu.Lock()
	s.files[filehand]++
	content, ok := s.Files[filehand]
	forbidden := s.Forbidden[filehand]
	s.mu.Unlock()

	if forbidden {
		if _, err := r.Cookie(SessionCookie); err != nil {
			jsonError(w, http.StatusOK, "proprietary file: login required")
			return
		}
	}
	if !ok {
		jsonError(w, http.StatusNotFound, "file not found: "+filehand)
		return
	}
	w.Header().Set("Content-Type", "application/fits")
	_, _ = fmt.Fprint(w, content)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("location")

	s.mu.Lock()
	coords, ok := s.Objects[name]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"stat": "error", "msg": "cannot resolve " + name})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stat":      "ok",
		"source":    "exoplanet",
		"objname":   name,
		"objtype":   "star",
		"parsename": name,
		"ra2000":    json.Number(coords[0]),
		"dec2000":   coords[1],
		"cra2000":   "00h00m00s",
		"cdec2000":  "+00d00m00s",
	})
}

// LookupURL is the resolver endpoint on this server.
func (s *Server) LookupURL() string {
	return s.URL + "/cgi-bin/Lookup/nph-lookup"
}
