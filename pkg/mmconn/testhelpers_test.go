// Copyright 2024-2026 Aiku AI

package mmconn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

const (
	testToken  = "test-token"
	testSelfID = "bot-user-id"
	testTeamID = "team-id"
	testChanID = "chan-id"
)

// endpointCall records a single API call made to the fake server.
type endpointCall struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeMM simulates the Mattermost REST API endpoints the client uses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	Users       map[string]*model.User
	TokenToUser map[string]string
	Passwords   map[string]string
	Teams       map[string]*model.Team
	// Channels maps "teamID:name" to a channel.
	Channels  map[string]*model.Channel
	Posts     map[string]*model.Post
	Reactions map[string][]*model.Reaction
	// NextCreateAt is the creation time given to the next created post.
	NextCreateAt int64
	nextID       int
}

func newFakeMM(t *testing.T) *fakeMM {
	t.Helper()
	f := &fakeMM{
		Users: map[string]*model.User{
			testSelfID: {Id: testSelfID, Username: "portal", IsBot: true},
		},
		TokenToUser: map[string]string{testToken: testSelfID},
		Passwords:   map[string]string{},
		Teams: map[string]*model.Team{
			"acme": {Id: testTeamID, Name: "acme"},
		},
		Channels: map[string]*model.Channel{
			testTeamID + ":town-square": {Id: testChanID, Name: "town-square", TeamId: testTeamID},
		},
		Posts:        map[string]*model.Post{},
		Reactions:    map[string][]*model.Reaction{},
		NextCreateAt: 2000000,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeMM) record(r *http.Request, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CallsTo(method, pathPrefix string) []endpointCall {
	var out []endpointCall
	for _, c := range f.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, pathPrefix) {
			out = append(out, c)
		}
	}
	return out
}

// addPost stores a post. UpdateAt defaults to CreateAt.
func (f *fakeMM) addPost(p *model.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ChannelId == "" {
		p.ChannelId = testChanID
	}
	if p.UpdateAt == 0 {
		p.UpdateAt = p.CreateAt
	}
	f.Posts[p.Id] = p
}

func (f *fakeMM) post(id string) *model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Posts[id]
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"id": "not_found", "message": what + " not found", "status_code": 404})
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r, string(body))
	path := strings.TrimPrefix(r.URL.Path, "/api/v4")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if path == "/users/login" && r.Method == http.MethodPost {
		var req map[string]string
		_ = json.Unmarshal(body, &req)
		uid, ok := f.Passwords[req["login_id"]+":"+req["password"]]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid credentials", "status_code": 401})
			return
		}
		tok := "session-" + uid
		f.mu.Lock()
		f.TokenToUser[tok] = uid
		f.mu.Unlock()
		w.Header().Set("Token", tok)
		writeJSON(w, http.StatusOK, f.Users[uid])
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	uid := f.resolveToken(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized", "status_code": 401})
		return
	}

	switch {
	// GET /users/me, /users/{id}
	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "users":
		id := parts[1]
		if id == "me" {
			id = uid
		}
		if u, ok := f.Users[id]; ok {
			writeJSON(w, http.StatusOK, u)
			return
		}
		notFound(w, "user")

	// GET /users/{id}/teams
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "users" && parts[2] == "teams":
		teams := []*model.Team{}
		for _, t := range f.Teams {
			teams = append(teams, t)
		}
		writeJSON(w, http.StatusOK, teams)

	// GET /teams/name/{name}
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "teams" && parts[1] == "name":
		if t, ok := f.Teams[parts[2]]; ok {
			writeJSON(w, http.StatusOK, t)
			return
		}
		notFound(w, "team")

	// GET /teams/{team}/channels/name/{name}
	case r.Method == http.MethodGet && len(parts) == 5 && parts[0] == "teams" && parts[2] == "channels":
		if ch, ok := f.Channels[parts[1]+":"+parts[4]]; ok {
			writeJSON(w, http.StatusOK, ch)
			return
		}
		notFound(w, "channel")

	// GET /channels/{id}/posts?since=
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "channels" && parts[2] == "posts":
		since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		pl := model.NewPostList()
		var matched []*model.Post
		for _, p := range f.Posts {
			if p.ChannelId == parts[1] && p.UpdateAt >= since {
				matched = append(matched, p)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].CreateAt > matched[j].CreateAt })
		for _, p := range matched {
			pl.AddPost(p)
			pl.AddOrder(p.Id)
		}
		writeJSON(w, http.StatusOK, pl)

	// POST /posts
	case r.Method == http.MethodPost && path == "/posts":
		var p model.Post
		_ = json.Unmarshal(body, &p)
		f.nextID++
		p.Id = fmt.Sprintf("created-%d", f.nextID)
		p.UserId = uid
		p.CreateAt = f.NextCreateAt
		p.UpdateAt = p.CreateAt
		f.NextCreateAt += 500
		f.Posts[p.Id] = &p
		writeJSON(w, http.StatusCreated, &p)

	// GET /posts/{id}
	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "posts":
		if p, ok := f.Posts[parts[1]]; ok {
			writeJSON(w, http.StatusOK, p)
			return
		}
		notFound(w, "post")

	// PUT /posts/{id}/patch
	case r.Method == http.MethodPut && len(parts) == 3 && parts[0] == "posts" && parts[2] == "patch":
		p, ok := f.Posts[parts[1]]
		if !ok {
			notFound(w, "post")
			return
		}
		var patch model.PostPatch
		_ = json.Unmarshal(body, &patch)
		if patch.Message != nil {
			p.Message = *patch.Message
		}
		if patch.Props != nil {
			p.SetProps(*patch.Props)
		}
		p.EditAt = p.CreateAt + 100000
		p.UpdateAt = p.EditAt
		writeJSON(w, http.StatusOK, p)

	// DELETE /posts/{id}
	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "posts":
		p, ok := f.Posts[parts[1]]
		if !ok {
			notFound(w, "post")
			return
		}
		p.DeleteAt = p.CreateAt + 200000
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})

	// GET /posts/{id}/reactions
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "posts" && parts[2] == "reactions":
		reactions := f.Reactions[parts[1]]
		if reactions == nil {
			reactions = []*model.Reaction{}
		}
		writeJSON(w, http.StatusOK, reactions)

	default:
		notFound(w, path)
	}
}

func newTestClient(t *testing.T, f *fakeMM) *Client {
	t.Helper()
	c, err := New(context.Background(), Options{
		ServerURL: f.Server.URL,
		Token:     testToken,
		Team:      "acme",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// newWebSocketEvent creates a model.WebSocketEvent carrying data.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

func postJSON(t *testing.T, p *model.Post) string {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
