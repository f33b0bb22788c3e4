package e2e_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alexjbarnes/journal-sync/internal/convert"
	"github.com/alexjbarnes/journal-sync/internal/convert/converttest"
	"github.com/alexjbarnes/journal-sync/internal/foundry"
	"github.com/alexjbarnes/journal-sync/internal/metadata"
	"github.com/alexjbarnes/journal-sync/internal/projector"
	"github.com/alexjbarnes/journal-sync/internal/queue"
	"github.com/alexjbarnes/journal-sync/internal/syncer"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "Gamemaster"
	testPassword = "hunter2"
	cookieName   = "journal-sync-session"
)

type bridgePage struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Sort int64  `json:"sort"`
	Type string `json:"type"`
	Text struct {
		Content string `json:"content"`
		Format  int    `json:"format"`
	} `json:"text"`
}

type bridgeEntry struct {
	ID     string       `json:"_id"`
	Name   string       `json:"name"`
	Folder *string      `json:"folder"`
	Sort   int64        `json:"sort"`
	Pages  []bridgePage `json:"pages"`
}

type bridgeFolder struct {
	ID     string  `json:"_id"`
	Name   string  `json:"name"`
	Folder *string `json:"folder"`
	Type   string  `json:"type"`
}

// bridge is an in-memory journal bridge holding one world.
type bridge struct {
	mu       sync.Mutex
	folders  []bridgeFolder
	entries  []bridgeEntry
	sessions map[string]bool
	nextID   int
}

func newBridge() *bridge {
	return &bridge{sessions: make(map[string]bool)}
}

func (b *bridge) id() string {
	b.nextID++
	return fmt.Sprintf("id%04d", b.nextID)
}

func ref(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func (b *bridge) addFolder(name, parent string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.id()
	b.folders = append(b.folders, bridgeFolder{ID: id, Name: name, Folder: ref(parent), Type: "JournalEntry"})

	return id
}

func (b *bridge) addEntry(name, folder string, pages map[string]string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := bridgeEntry{ID: b.id(), Name: name, Folder: ref(folder)}
	for pageName, content := range pages {
		p := bridgePage{ID: b.id(), Name: pageName, Type: "text"}
		p.Text.Content = content
		p.Text.Format = 1
		e.Pages = append(e.Pages, p)
	}

	b.entries = append(b.entries, e)

	return e.ID
}

func (b *bridge) entry(name string) (bridgeEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if e.Name == name {
			return e, true
		}
	}

	return bridgeEntry{}, false
}

func (b *bridge) folder(name string) (bridgeFolder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range b.folders {
		if f.Name == name {
			return f, true
		}
	}

	return bridgeFolder{}, false
}

// expireSessions forgets every session, as a world restart does.
func (b *bridge) expireSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessions = make(map[string]bool)
}

func (b *bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && r.URL.Path == "/journal-sync/session" {
		b.login(w, r)
		return
	}

	c, err := r.Cookie(cookieName)

	b.mu.Lock()
	ok := err == nil && b.sessions[c.Value]
	b.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/journal-sync/tree":
		b.tree(w)
	case r.Method == http.MethodPost && r.URL.Path == "/journal-sync/folders":
		b.createFolder(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/journal-sync/entries":
		b.createEntry(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/journal-sync/entries/"):
		b.updateEntry(w, r, strings.TrimPrefix(r.URL.Path, "/journal-sync/entries/"))
	default:
		http.NotFound(w, r)
	}
}

func (b *bridge) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.User != testUser || body.Password != testPassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	session := b.id()
	b.sessions[session] = true
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: session, Path: "/"})
	w.WriteHeader(http.StatusNoContent)
}

func (b *bridge) tree(w http.ResponseWriter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	writeJSON(w, map[string]any{"folders": b.folders, "entries": b.entries})
}

func (b *bridge) createFolder(w http.ResponseWriter, r *http.Request) {
	var f bridgeFolder
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	f.ID = b.id()
	b.folders = append(b.folders, f)
	b.mu.Unlock()

	writeJSON(w, f)
}

func (b *bridge) createEntry(w http.ResponseWriter, r *http.Request) {
	var e bridgeEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	e.ID = b.id()
	for i := range e.Pages {
		e.Pages[i].ID = b.id()
	}
	b.entries = append(b.entries, e)
	b.mu.Unlock()

	writeJSON(w, e)
}

// updateEntry replaces the content of pages matched by name and appends
// the others.
func (b *bridge) updateEntry(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Pages []bridgePage `json:"pages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		e := &b.entries[i]
		if e.ID != id {
			continue
		}

	pages:
		for _, p := range body.Pages {
			for j := range e.Pages {
				if e.Pages[j].Name == p.Name {
					e.Pages[j].Text = p.Text
					continue pages
				}
			}

			p.ID = b.id()
			e.Pages = append(e.Pages, p)
		}

		w.WriteHeader(http.StatusNoContent)

		return
	}

	http.Error(w, "no such entry", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// harness is the full stack pointed at a bridge: HTTP client, syncer,
// projector, metadata store and queue.
type harness struct {
	bridge *bridge
	root   string
	store  *metadata.Store
	queue  *queue.Queue
	syncer *syncer.Syncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	b := newBridge()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.DiscardHandler)

	client, err := foundry.NewClient(srv.URL, testUser, testPassword, logger)
	require.NoError(t, err)

	root := t.TempDir()
	store := metadata.New(filepath.Join(root, ".journal-sync.db"))
	proj := projector.New(root, store, &converttest.Fake{}, convert.DefaultFormats()["org"], logger)
	q := queue.New(logger)

	return &harness{
		bridge: b,
		root:   root,
		store:  store,
		queue:  q,
		syncer: syncer.New(client, proj, store, q, logger),
	}
}

// run submits cmd and drains the queue including follow-ups.
func (h *harness) run(t *testing.T, cmd queue.Command) {
	t.Helper()

	var errs []error

	h.queue.Submit(cmd)
	require.NoError(t, h.queue.Run(t.Context(), func(ctx context.Context, c queue.Command) error {
		err := h.syncer.Handle(ctx, c)
		if err != nil {
			errs = append(errs, err)
		}

		return err
	}, true))
	require.Empty(t, errs)
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()

	path := filepath.Join(h.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (h *harness) read(t *testing.T, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(h.root, filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}
