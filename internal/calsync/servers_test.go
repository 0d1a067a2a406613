package calsync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeCalendarAPI serves the subset of Google Calendar and Graph used by the
// providers. Listings are split into pages of pageSize items.
type fakeCalendarAPI struct {
	mu          sync.Mutex
	items       []map[string]any
	pageSize    int
	created     []map[string]any
	authHeaders []string
	listCalls   int
	createFail  bool
	omitIDs     bool
	server      *httptest.Server
}

func newFakeGoogleAPI(t *testing.T, items ...map[string]any) *fakeCalendarAPI {
	f := &fakeCalendarAPI{items: items, pageSize: 2}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		page, next := f.page(r.URL.Query().Get("pageToken"), r)
		body := map[string]any{"items": page}
		if next != "" {
			body["nextPageToken"] = next
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.HandleFunc("POST /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		f.create(w, r, "g-new", map[string]any{"error": map[string]any{"code": 403, "message": "Calendar usage limits exceeded."}})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newFakeGraphAPI(t *testing.T, items ...map[string]any) *fakeCalendarAPI {
	f := &fakeCalendarAPI{items: items, pageSize: 2}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me/calendarView", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != `outlook.timezone="UTC"` {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "missing Prefer header"}})
			return
		}
		page, next := f.page(r.URL.Query().Get("$skiptoken"), r)
		body := map[string]any{"value": page}
		if next != "" {
			body["@odata.nextLink"] = f.server.URL + "/me/calendarView?$skiptoken=" + next
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.HandleFunc("POST /me/events", func(w http.ResponseWriter, r *http.Request) {
		f.create(w, r, "AAMk", map[string]any{"error": map[string]any{"code": "ErrorAccessDenied", "message": "Access is denied."}})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCalendarAPI) page(token string, r *http.Request) ([]map[string]any, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))

	start := 0
	if token != "" {
		fmt.Sscanf(token, "%d", &start)
	}
	end := min(start+f.pageSize, len(f.items))
	if start >= len(f.items) {
		return []map[string]any{}, ""
	}
	next := ""
	if end < len(f.items) {
		next = fmt.Sprintf("%d", end)
	}
	return f.items[start:end], next
}

func (f *fakeCalendarAPI) create(w http.ResponseWriter, r *http.Request, idPrefix string, errBody map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	if f.createFail {
		writeJSON(w, http.StatusForbidden, errBody)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody)
		return
	}
	f.created = append(f.created, body)
	resp := map[string]any{}
	if !f.omitIDs {
		resp["id"] = fmt.Sprintf("%s-%d", idPrefix, len(f.created))
	}
	writeJSON(w, http.StatusOK, resp)
}

// fakeTokenServer is an OAuth2 token endpoint.
type fakeTokenServer struct {
	mu         sync.Mutex
	grantTypes []string
	codes      []string
	clientIDs  []string
	basicAuth  int
	fail       bool
	rotate     string
	server     *httptest.Server
}

func newFakeTokenServer(t *testing.T) *fakeTokenServer {
	f := &fakeTokenServer{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.grantTypes = append(f.grantTypes, r.PostForm.Get("grant_type"))
		f.codes = append(f.codes, r.PostForm.Get("code"))
		f.clientIDs = append(f.clientIDs, r.PostForm.Get("client_id"))
		if _, _, ok := r.BasicAuth(); ok {
			f.basicAuth++
		}
		if f.fail {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Token has been expired or revoked.",
			})
			return
		}
		body := map[string]any{
			"access_token":  "fresh-access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "issued-refresh",
		}
		if r.PostForm.Get("grant_type") == "refresh_token" {
			body["refresh_token"] = r.PostForm.Get("refresh_token")
			if f.rotate != "" {
				body["refresh_token"] = f.rotate
			}
		}
		writeJSON(w, http.StatusOK, body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeTokenServer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grantTypes)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
