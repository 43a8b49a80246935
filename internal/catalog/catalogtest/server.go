// Package catalogtest runs an in-process catalog service for tests.
package catalogtest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/reflexmaps/internal/catalog"
)

// Request is a recorded hit on the fake service.
type Request struct {
	Path     string
	RawQuery string
}

type mapEntry struct {
	item    catalog.Item
	content []byte
	ids     []string
}

// Server serves `GET /api/?since=`, `GET /api/:id` and `GET /maps/:name` the way
// the real service does.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	now         time.Time
	maps        map[string]*mapEntry
	order       []string
	catalogFail int
	catalogBody string
	mapFail     map[string]int
	requests    []Request
}

func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		now:     time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		maps:    make(map[string]*mapEntry),
		mapFail: make(map[string]int),
	}

	r := gin.New()
	r.Use(s.record)
	r.GET("/api/", s.handleFull)
	r.GET("/api/:id", s.handleScoped)
	r.GET("/maps/:name", s.handleMap)

	s.Server = httptest.NewServer(r)
	return s
}

// SourceURL is the base url a client should be configured with.
func (s *Server) SourceURL() string {
	return s.URL + "/api/"
}

// MapURL is the download url for a map name.
func (s *Server) MapURL(name string) string {
	return s.URL + "/maps/" + name
}

// SetNow sets the clock reported in the `now` field.
func (s *Server) SetNow(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
}

// PutMap publishes or replaces a map. ids are the identifiers whose scoped query lists it.
func (s *Server) PutMap(name string, content []byte, lastUpdated time.Time, ids ...string) catalog.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := catalog.Item{URL: s.MapURL(name), LastUpdated: lastUpdated}
	if _, ok := s.maps[name]; !ok {
		s.order = append(s.order, name)
	}
	s.maps[name] = &mapEntry{item: item, content: content, ids: ids}
	return item
}

// FailCatalog makes catalog queries answer with status. Zero restores normal behaviour.
func (s *Server) FailCatalog(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogFail = status
}

// SetCatalogBody makes catalog queries answer 200 with a raw body. Empty restores normal behaviour.
func (s *Server) SetCatalogBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogBody = body
}

// FailMap makes downloads of name answer with status. Zero restores normal behaviour.
func (s *Server) FailMap(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.mapFail, name)
		return
	}
	s.mapFail[name] = status
}

// Requests returns every request seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Downloads counts the map downloads seen so far.
func (s *Server) Downloads() int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, "/maps/") {
			n++
		}
	}
	return n
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{Path: c.Request.URL.Path, RawQuery: c.Request.URL.RawQuery})
	s.mu.Unlock()
	c.Next()
}

type itemJSON struct {
	URL         string    `json:"url"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type catalogJSON struct {
	Now      time.Time  `json:"now"`
	ToUpdate []itemJSON `json:"toUpdate"`
}

func (s *Server) handleFull(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad since"})
			return
		}
		since = t
	}

	s.respond(c, func(e *mapEntry) bool {
		return e.item.LastUpdated.After(since)
	})
}

func (s *Server) handleScoped(c *gin.Context) {
	id := c.Param("id")
	s.respond(c, func(e *mapEntry) bool {
		for _, v := range e.ids {
			if v == id {
				return true
			}
		}
		return false
	})
}

func (s *Server) respond(c *gin.Context, match func(*mapEntry) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalogFail != 0 {
		c.String(s.catalogFail, "catalog unavailable")
		return
	}
	if s.catalogBody != "" {
		c.Data(http.StatusOK, "application/json", []byte(s.catalogBody))
		return
	}

	out := catalogJSON{Now: s.now, ToUpdate: []itemJSON{}}
	names := append([]string(nil), s.order...)
	sort.SliceStable(names, func(i, j int) bool {
		return s.maps[names[i]].item.LastUpdated.Before(s.maps[names[j]].item.LastUpdated)
	})
	for _, name := range names {
		e := s.maps[name]
		if match(e) {
			out.ToUpdate = append(out.ToUpdate, itemJSON{URL: e.item.URL, LastUpdated: e.item.LastUpdated})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleMap(c *gin.Context) {
	name := c.Param("name")

	s.mu.Lock()
	status, failing := s.mapFail[name]
	e, ok := s.maps[name]
	s.mu.Unlock()

	if failing {
		c.String(status, "map unavailable")
		return
	}
	if !ok {
		c.String(http.StatusNotFound, "no such map")
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", e.content)
}
