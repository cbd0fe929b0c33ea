package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imgprompt/imgprompt/internal/copygate"
	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/history"
	"github.com/imgprompt/imgprompt/internal/logging"
	"github.com/imgprompt/imgprompt/internal/render"
)

const testPort = 3000

type fakeClipboard struct {
	mu     sync.Mutex
	writes []string
}

func (c *fakeClipboard) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, text)
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	dir       string
	store     *history.Store
	clock     *fakeClock
	clipboard *fakeClipboard
	handler   http.Handler
}

func setupTest(t *testing.T, capacity int) *testEnv {
	t.Helper()
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2026, 10, 14, 15, 30, 0, 0, time.Local)}

	store, err := history.Load(history.Options{
		BaseDir:  dir,
		Capacity: capacity,
		APIBase:  BaseURL(testPort),
		Renderer: render.New(),
		Now:      clock.Now,
	})
	require.NoError(t, err)

	clip := &fakeClipboard{}
	srv := NewServer(Options{
		Store:     store,
		Gate:      copygate.New(2*time.Second, clock.Now),
		Clipboard: clip,
	}, testPort)

	return &testEnv{dir: dir, store: store, clock: clock, clipboard: clip, handler: srv.Handler}
}

func (e *testEnv) seed(t *testing.T, prompts ...string) []history.Entry {
	t.Helper()
	var out []history.Entry
	for _, p := range prompts {
		entry, err := e.store.Append(context.Background(), history.AppendInput{Prompt: p})
		require.NoError(t, err)
		out = append(out, entry)
		e.clock.Advance(time.Second)
	}
	return out
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHandlePing(t *testing.T) {
	env := setupTest(t, 10)

	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHandleEntries_LiveAndArchive(t *testing.T) {
	env := setupTest(t, 2)
	seeded := env.seed(t, "one", "two", "three")

	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/pages/live/entries", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["entries"], 2)

	rec, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/pages/20261014/entries", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	require.Equal(t, seeded[0].ID, entries[0].(map[string]any)["id"])

	rec, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/pages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["pages"], 2)
}

func TestHandleEntries_BadPage(t *testing.T) {
	env := setupTest(t, 10)

	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/pages/yesterday/entries", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", errorCode(body))

	rec, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/pages/20200101/entries", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestHandlePrompt(t *testing.T) {
	env := setupTest(t, 10)
	e := env.seed(t, "[subject]: robot")[0]

	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/pages/live/entries/"+e.ID+"/prompt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[subject]: robot", body["prompt"])

	rec, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/pages/live/entries/nope/prompt", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, body["error"].(map[string]any)["message"], "nope")
}

func TestHandleOverwrite(t *testing.T) {
	env := setupTest(t, 10)
	e := env.seed(t, "before")[0]

	rec, body := env.do(t, postJSON("/api/pages/live/entries/"+e.ID+"/overwrite", `{"prompt":"  after  "}`))
	require.Equal(t, http.StatusOK, rec.Code)
	entry := body["entry"].(map[string]any)
	require.Equal(t, "after", entry["prompt"])
	require.Equal(t, "live", entry["page"])

	html, err := os.ReadFile(filepath.Join(env.dir, history.LiveHTMLFile))
	require.NoError(t, err)
	require.Contains(t, string(html), ">after</textarea>")

	rec, body = env.do(t, postJSON("/api/pages/live/entries/"+e.ID+"/overwrite", `{"prompt":""}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", errorCode(body))

	rec, _ = env.do(t, postJSON("/api/pages/live/entries/"+e.ID+"/overwrite", `{not json`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDelete_NotFoundCreatesNothing(t *testing.T) {
	env := setupTest(t, 10)
	env.seed(t, "keep")
	rev := env.store.Revision()

	rec, body := env.do(t, postJSON("/api/pages/live/entries/20991231_000000_0001/delete", `{}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", errorCode(body))
	require.Equal(t, rev, env.store.Revision())

	entries, err := env.store.List(context.Background(), history.Live)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestHandleDelete_ArchiveEntry(t *testing.T) {
	env := setupTest(t, 1)
	seeded := env.seed(t, "old", "new")

	// Addressed to live, the archived entry is not found.
	rec, _ := env.do(t, postJSON("/api/pages/live/entries/"+seeded[0].ID+"/delete", ``))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := env.do(t, postJSON("/api/pages/20261014/entries/"+seeded[0].ID+"/delete", ``))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, seeded[0].ID, body["entry"].(map[string]any)["id"])

	archived, err := env.store.List(context.Background(), history.Page("20261014"))
	require.NoError(t, err)
	require.Empty(t, archived)
}

func TestHandleImage_UploadReplaceAndRead(t *testing.T) {
	env := setupTest(t, 10)
	e := env.seed(t, "with image")[0]
	path := "/api/pages/live/entries/" + e.ID + "/image"

	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := env.do(t, multipartRequest(t, path, "a.png", []byte("first")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := body["image_path"].(string)
	require.True(t, strings.HasPrefix(first, "images/2026/10/"))

	rec, body = env.do(t, multipartRequest(t, path, "b.jpg", []byte("second")))
	require.Equal(t, http.StatusOK, rec.Code)
	second := body["image_path"].(string)
	require.NotEqual(t, first, second)

	_, err := os.Stat(filepath.Join(env.dir, filepath.FromSlash(first)))
	require.True(t, os.IsNotExist(err))

	rec, _ = env.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, "second", rec.Body.String())
}

func TestHandleImage_Rejects(t *testing.T) {
	env := setupTest(t, 10)
	e := env.seed(t, "x")[0]
	path := "/api/pages/live/entries/" + e.ID + "/image"

	rec, body := env.do(t, multipartRequest(t, path, "a.gif", []byte("gif")))
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	require.Equal(t, "UNSUPPORTED_IMAGE", errorCode(body))

	rec, body = env.do(t, postJSON(path, `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", errorCode(body))

	rec, _ = env.do(t, multipartRequest(t, "/api/pages/live/entries/missing/image", "a.png", []byte("png")))
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err := os.Stat(filepath.Join(env.dir, "images"))
	if err == nil {
		matches, _ := filepath.Glob(filepath.Join(env.dir, "images", "*", "*", "*"))
		require.Empty(t, matches)
	}
}

func TestHandleCopy_Debounce(t *testing.T) {
	env := setupTest(t, 10)

	rec, body := env.do(t, postJSON("/app/copy", `{"prompt":"A"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["skipped"])

	env.clock.Advance(time.Second)
	_, body = env.do(t, postJSON("/app/copy", `{"prompt":"A"}`))
	require.Equal(t, true, body["skipped"])

	env.clock.Advance(2 * time.Second)
	_, body = env.do(t, postJSON("/app/copy", `{"prompt":"A"}`))
	require.Equal(t, false, body["skipped"])

	entries, err := env.store.List(context.Background(), history.Live)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []string{"A", "A", "A"}, env.clipboard.writes)

	_, body = env.do(t, postJSON("/app/copy", `{"prompt":"   "}`))
	require.Equal(t, true, body["skipped"])
	require.Len(t, env.clipboard.writes, 3)
}

func TestHandleRevision(t *testing.T) {
	env := setupTest(t, 10)

	_, body := env.do(t, httptest.NewRequest(http.MethodGet, "/app/history-revision", nil))
	require.Equal(t, float64(0), body["revision"])

	env.seed(t, "bump")
	_, body = env.do(t, httptest.NewRequest(http.MethodGet, "/app/history-revision", nil))
	require.Equal(t, float64(1), body["revision"])
}

func TestCORS(t *testing.T) {
	env := setupTest(t, 10)

	for _, origin := range []string{"null", "http://127.0.0.1:3000", "http://localhost:3000"} {
		req := httptest.NewRequest(http.MethodOptions, "/app/copy", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec, _ := env.do(t, req)
		require.Equal(t, http.StatusNoContent, rec.Code, origin)
		require.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req := postJSON("/app/copy", `{"prompt":"evil"}`)
	req.Header.Set("Origin", "https://example.com")
	rec, body := env.do(t, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "INVALID_REQUEST", errorCode(body))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, env.clipboard.writes)
}

func TestRenderError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	renderError(rec, nil, errors.NewIOFailure("write", "/home/user/history.json", os.ErrPermission))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "/home/user")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["ok"])
	require.Equal(t, "IO_FAILURE", errorCode(body))
	require.Equal(t, "internal error", body["error"].(map[string]any)["message"])
}

func TestListen_TriesNextPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	taken := busy.Addr().(*net.TCPAddr).Port

	ln, port, err := Listen(taken)
	require.NoError(t, err)
	defer ln.Close()

	require.NotEqual(t, taken, port)
	require.Greater(t, port, taken)
	require.Less(t, port, taken+portScanRange)
	require.Equal(t, "127.0.0.1", ln.Addr().(*net.TCPAddr).IP.String())
}

func TestRun_ShutsDownOnContextCancel(t *testing.T) {
	env := setupTest(t, 10)
	ln, port, err := Listen(0)
	require.NoError(t, err)

	srv := &http.Server{Handler: env.handler}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, ln, logging.Discard()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(BaseURL(port) + "/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err = http.Get(BaseURL(port) + "/ping")
	require.Error(t, err)
}
