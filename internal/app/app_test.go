package app

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "net/http/httptest"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/hyperifyio/studysync/internal/deliver"
    "github.com/hyperifyio/studysync/internal/render"
)

const calendarPage = `<html><head><title>Calendar - ENGL 200</title></head><body><ul>
  <li><div>Essay 1 Due</div><div>ENGL 200</div><div>Sep 19, 2025 11:59 PM</div></li>
  <li><div>Midterm Exam</div><div>COMP 250</div><div>Oct 3, 2025 2:30 PM</div></li>
</ul></body></html>`

const widgetPage = `<html><body><div class="d2l-widget" id="upcoming">
  <h2>Upcoming Events</h2>
  <ul><li><div>SEP 22 - Quiz 2 10:00 AM</div></li></ul>
</div></body></html>`

func fixedNow() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }

// fakeLMS serves a calendar list, a home page with the widget, and an empty page.
func fakeLMS(t *testing.T) *httptest.Server {
    t.Helper()
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/html; charset=utf-8")
        switch {
        case strings.HasPrefix(r.URL.Path, "/d2l/le/calendar/"):
            _, _ = w.Write([]byte(calendarPage))
        case strings.HasPrefix(r.URL.Path, "/d2l/home/"):
            _, _ = w.Write([]byte(widgetPage))
        default:
            _, _ = w.Write([]byte("<html><body><p>Nothing here</p></body></html>"))
        }
    }))
    t.Cleanup(srv.Close)
    return srv
}

type fakeBackend struct {
    srv     *httptest.Server
    mu      sync.Mutex
    batches [][]map[string]any
    status  int
}

func newFakeBackend(t *testing.T) *fakeBackend {
    t.Helper()
    fb := &fakeBackend{status: http.StatusOK}
    fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/health" {
            _, _ = w.Write([]byte(`{"ok":true}`))
            return
        }
        fb.mu.Lock()
        defer fb.mu.Unlock()
        if fb.status != http.StatusOK {
            w.WriteHeader(fb.status)
            return
        }
        var batch []map[string]any
        b, _ := io.ReadAll(r.Body)
        _ = json.Unmarshal(b, &batch)
        fb.batches = append(fb.batches, batch)
        _, _ = w.Write([]byte(`{"ok":true,"stats":{"imported":` + itoa(len(batch)) + `,"updated":0}}`))
    }))
    t.Cleanup(fb.srv.Close)
    return fb
}

func itoa(n int) string {
    b, _ := json.Marshal(n)
    return string(b)
}

func newTestApp(t *testing.T, cfg Config) *App {
    t.Helper()
    if cfg.Now == nil {
        cfg.Now = fixedNow
    }
    if cfg.Timezone == "" {
        cfg.Timezone = "UTC"
    }
    a, err := New(context.Background(), cfg)
    if err != nil {
        t.Fatalf("new app: %v", err)
    }
    t.Cleanup(a.Close)
    return a
}

func TestRun_DeliversEachPage(t *testing.T) {
    lms := fakeLMS(t)
    backend := newFakeBackend(t)
    a := newTestApp(t, Config{
        URLs:     []string{lms.URL + "/d2l/le/calendar/6605/home/list", lms.URL + "/d2l/home/6605"},
        APIBase:  backend.srv.URL,
        APIToken: "tok",
    })
    if err := a.Run(context.Background()); err != nil {
        t.Fatalf("run: %v", err)
    }
    if len(backend.batches) != 2 {
        t.Fatalf("expected one batch per page, got %d", len(backend.batches))
    }
    first := backend.batches[0]
    if len(first) != 2 || first[0]["title"] != "Essay 1 Due" || first[0]["due_at"] != "2025-09-19T23:59:00.000Z" {
        t.Fatalf("unexpected calendar batch: %v", first)
    }
    if backend.batches[1][0]["kind"] != "quiz" {
        t.Fatalf("unexpected widget batch: %v", backend.batches[1])
    }
}

func TestRun_NothingFound(t *testing.T) {
    lms := fakeLMS(t)
    backend := newFakeBackend(t)
    a := newTestApp(t, Config{URLs: []string{lms.URL + "/d2l/le/content/1"}, APIBase: backend.srv.URL, APIToken: "tok"})
    if err := a.Run(context.Background()); !errors.Is(err, ErrNothingFound) {
        t.Fatalf("expected ErrNothingFound, got %v", err)
    }
    if len(backend.batches) != 0 {
        t.Fatalf("nothing should be delivered")
    }
}

func TestRun_DryRunWritesOutputs(t *testing.T) {
    lms := fakeLMS(t)
    dir := t.TempDir()
    out := filepath.Join(dir, "out", "records.json")
    pdf := filepath.Join(dir, "agenda.pdf")
    a := newTestApp(t, Config{
        URLs:    []string{lms.URL + "/d2l/le/calendar/6605/home/list"},
        DryRun:  true,
        OutPath: out,
        PDFPath: pdf,
    })
    var stdout bytes.Buffer
    a.stdout = &stdout
    if err := a.Run(context.Background()); err != nil {
        t.Fatalf("run: %v", err)
    }
    var printed []map[string]any
    if err := json.Unmarshal(stdout.Bytes(), &printed); err != nil {
        t.Fatalf("stdout is not json: %v\n%s", err, stdout.String())
    }
    if len(printed) != 2 || printed[0]["source_uid"] != "cal-2025-9-19-essay 1 due" {
        t.Fatalf("unexpected dry-run output: %v", printed)
    }
    b, err := os.ReadFile(out)
    if err != nil {
        t.Fatalf("read out: %v", err)
    }
    if !bytes.Equal(bytes.TrimSpace(b), bytes.TrimSpace(stdout.Bytes())) {
        t.Fatalf("-out file differs from printed payload")
    }
    p, err := os.ReadFile(pdf)
    if err != nil {
        t.Fatalf("read pdf: %v", err)
    }
    if !bytes.HasPrefix(p, []byte("%PDF-")) {
        t.Fatalf("agenda is not a pdf")
    }
}

func TestRun_SnapshotFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "home.html")
    if err := os.WriteFile(path, []byte(widgetPage), 0o600); err != nil {
        t.Fatalf("write snapshot: %v", err)
    }
    a := newTestApp(t, Config{HTMLPath: path, PageURL: "https://mycourses2.mcgill.ca/d2l/home/6605", DryRun: true})
    var stdout bytes.Buffer
    a.stdout = &stdout
    if err := a.Run(context.Background()); err != nil {
        t.Fatalf("run: %v", err)
    }
    if !strings.Contains(stdout.String(), `"home-2025-9-22-quiz 2"`) {
        t.Fatalf("expected widget record, got %s", stdout.String())
    }
}

func TestRun_RenderedPagesAreCached(t *testing.T) {
    calls := 0
    cfg := Config{
        URLs:        []string{"https://mycourses2.mcgill.ca/d2l/le/calendar/6605/home/list"},
        Render:      true,
        DryRun:      true,
        CacheDir:    t.TempDir(),
        CacheMaxAge: time.Hour,
    }
    fake := func(ctx context.Context, url string, opts render.Options) (*render.Result, error) {
        calls++
        return &render.Result{HTML: calendarPage, FinalURL: url}, nil
    }
    for i := 0; i < 2; i++ {
        a := newTestApp(t, cfg)
        a.render = fake
        a.stdout = io.Discard
        if err := a.Run(context.Background()); err != nil {
            t.Fatalf("run %d: %v", i, err)
        }
    }
    if calls != 1 {
        t.Fatalf("browser should render once and then serve the snapshot, calls = %d", calls)
    }
}

func TestRun_Unauthorized(t *testing.T) {
    lms := fakeLMS(t)
    backend := newFakeBackend(t)
    backend.status = http.StatusUnauthorized
    a := newTestApp(t, Config{URLs: []string{lms.URL + "/d2l/home/6605"}, APIBase: backend.srv.URL, APIToken: "expired"})
    if err := a.Run(context.Background()); !errors.Is(err, deliver.ErrUnauthorized) {
        t.Fatalf("expected ErrUnauthorized, got %v", err)
    }
}

func TestRun_AllPagesFailToLoad(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusNotFound)
    }))
    defer srv.Close()
    a := newTestApp(t, Config{URLs: []string{srv.URL + "/d2l/home/1"}, DryRun: true})
    err := a.Run(context.Background())
    if err == nil || errors.Is(err, ErrNothingFound) {
        t.Fatalf("expected a load error, got %v", err)
    }
}

func TestMergeRecords_FirstWins(t *testing.T) {
    pages := []pageResult{
        {Records: sampleAgenda()[:2]},
        {Records: sampleAgenda()},
    }
    got := mergeRecords(pages)
    if len(got) != len(sampleAgenda()) {
        t.Fatalf("merged %d records, want %d", len(got), len(sampleAgenda()))
    }
}
