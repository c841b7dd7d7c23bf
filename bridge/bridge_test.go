package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stevecastle/vdr/commands"
	"github.com/stevecastle/vdr/history"
	"github.com/stevecastle/vdr/jobqueue"
	"github.com/stevecastle/vdr/runners"
)

type fixture struct {
	srv     *httptest.Server
	bridge  *Bridge
	queue   *jobqueue.Queue
	tracker *history.Tracker
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr := history.New()
	reg := commands.NewRegistry()
	commands.NewService(tr).Register(reg)
	q := jobqueue.NewQueue(nil)
	r := runners.New(q, reg, 8)
	b := New(q, reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/invoke/{command}", b.InvokeHandler())
	mux.HandleFunc("/commands", b.CommandsHandler())
	mux.HandleFunc("/ws", b.WebSocketHandler())
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		r.Shutdown()
	})
	return &fixture{srv: srv, bridge: b, queue: q, tracker: tr, dir: t.TempDir()}
}

func (f *fixture) file(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) invoke(t *testing.T, command, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/invoke/"+command, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", command, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func pathBody(p string) string {
	b, _ := json.Marshal(map[string]string{"file_path": p})
	return string(b)
}

func decodeText(t *testing.T, data []byte) textResponse {
	t.Helper()
	var tr textResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return tr
}

func TestReadFileReturnsBytes(t *testing.T) {
	f := newFixture(t)
	content := []byte{0, 1, 2, 250, 251, '\n'}
	p := f.file(t, "bin", content)

	resp, data := f.invoke(t, commands.ReadFile, pathBody(p))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("body = %v; want %v", data, content)
	}
}

func TestDownloadMatchesRead(t *testing.T) {
	f := newFixture(t)
	p := f.file(t, "same.txt", []byte("identical"))
	missing := filepath.Join(f.dir, "missing")

	for _, path := range []string{p, missing} {
		r1, d1 := f.invoke(t, commands.ReadFile, pathBody(path))
		r2, d2 := f.invoke(t, commands.DownloadFile, pathBody(path))
		if r1.StatusCode != r2.StatusCode || !bytes.Equal(d1, d2) {
			t.Errorf("%s: read (%d %q) != download (%d %q)", path, r1.StatusCode, d1, r2.StatusCode, d2)
		}
	}
}

func TestUploadFile(t *testing.T) {
	f := newFixture(t)
	p := f.file(t, "report.docx", []byte("doc"))

	resp, data := f.invoke(t, commands.UploadFile, pathBody(p))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.StatusCode, data)
	}
	tr := decodeText(t, data)
	if !tr.OK || tr.Message != "File uploaded successfully: "+p {
		t.Errorf("response = %+v", tr)
	}
	if f.tracker.Len() != 1 {
		t.Errorf("history Len() = %d; want 1", f.tracker.Len())
	}

	resp, data = f.invoke(t, commands.UploadFile, pathBody(filepath.Join(f.dir, "absent")))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("missing upload status = %d", resp.StatusCode)
	}
	if tr := decodeText(t, data); tr.OK || !strings.Contains(tr.Error, "no such file") {
		t.Errorf("missing upload response = %+v", tr)
	}
	if f.tracker.Len() != 1 {
		t.Errorf("failed upload changed history: Len() = %d", f.tracker.Len())
	}
}

func TestDeleteThenReadFails(t *testing.T) {
	f := newFixture(t)
	p := f.file(t, "tmp.txt", []byte("bye"))

	resp, data := f.invoke(t, commands.DeleteFile, pathBody(p))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d body = %s", resp.StatusCode, data)
	}
	if tr := decodeText(t, data); tr.Message != "File deleted successfully" {
		t.Errorf("delete response = %+v", tr)
	}

	resp, _ = f.invoke(t, commands.ReadFile, pathBody(p))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("read after delete status = %d; want 422", resp.StatusCode)
	}

	resp, _ = f.invoke(t, commands.DeleteFile, pathBody(p))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("second delete status = %d; want 422", resp.StatusCode)
	}
}

func TestCamelCaseArgument(t *testing.T) {
	f := newFixture(t)
	p := f.file(t, "camel", []byte("c"))
	resp, data := f.invoke(t, commands.ReadFile, fmt.Sprintf(`{"filePath":%q}`, p))
	if resp.StatusCode != http.StatusOK || string(data) != "c" {
		t.Errorf("status = %d body = %q", resp.StatusCode, data)
	}
}

func TestInvokeRejections(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		command string
		body    string
		want    int
	}{
		{"unknown command", "rm_rf", pathBody("/x"), http.StatusNotFound},
		{"missing argument", commands.ReadFile, `{}`, http.StatusBadRequest},
		{"empty body", commands.ReadFile, ``, http.StatusBadRequest},
		{"bad json", commands.ReadFile, `{"file_path":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := f.invoke(t, tt.command, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d; want %d (body %s)", resp.StatusCode, tt.want, data)
			}
		})
	}

	resp, err := http.Get(f.srv.URL + "/invoke/read_file")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d; want 405", resp.StatusCode)
	}
}

func TestCommandsHandler(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/commands")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body["commands"]) != 5 {
		t.Errorf("commands = %v", body["commands"])
	}
}

// TestConcurrentUploads checks N concurrent HTTP uploads append exactly N records
func TestConcurrentUploads(t *testing.T) {
	const n = 100
	f := newFixture(t)
	paths := make([]string, n)
	for i := range paths {
		paths[i] = f.file(t, fmt.Sprintf("c%03d", i), []byte("x"))
	}

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			resp, err := http.Post(f.srv.URL+"/invoke/upload_file", "application/json", strings.NewReader(pathBody(p)))
			if err != nil {
				t.Error(err)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("upload %s status = %d", p, resp.StatusCode)
			}
		}(p)
	}
	wg.Wait()

	if f.tracker.Len() != n {
		t.Errorf("history Len() = %d; want %d", f.tracker.Len(), n)
	}
}

func TestCallHonoursContext(t *testing.T) {
	reg := commands.NewRegistry()
	reg.Register("never", func(context.Context, commands.Args) (commands.Result, error) {
		return commands.Result{}, nil
	})
	// no runners: the job stays pending
	b := New(jobqueue.NewQueue(nil), reg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Call(ctx, "never", commands.Args{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v; want context.Canceled", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&commands.FSError{Err: os.ErrNotExist}, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: x", commands.ErrUnknownCommand), http.StatusNotFound},
		{commands.ErrMissingArgument, http.StatusBadRequest},
		{errors.Join(ErrUnavailable, jobqueue.ErrQueueShutdown), http.StatusServiceUnavailable},
		{jobqueue.ErrQueueShutdown, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}

func TestCallSurvivesPruning(t *testing.T) {
	f := newFixture(t)
	f.queue.SetRetention(0)
	p := f.file(t, "small.txt", []byte("abc"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.bridge.Call(context.Background(), commands.ReadFile, commands.Args{FilePath: p})
			if err != nil {
				t.Errorf("Call() error = %v", err)
				return
			}
			if string(res.Data) != "abc" {
				t.Errorf("Call() data = %q", res.Data)
			}
		}()
	}
	wg.Wait()
}

func TestCallReleasesFileBytes(t *testing.T) {
	f := newFixture(t)
	p := f.file(t, "big.bin", bytes.Repeat([]byte{7}, 1<<20))

	for i := 0; i < 5; i++ {
		res, err := f.bridge.Call(context.Background(), commands.DownloadFile, commands.Args{FilePath: p})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Data) != 1<<20 {
			t.Fatalf("len(Data) = %d", len(res.Data))
		}
	}

	retained := 0
	for _, j := range f.queue.GetJobs() {
		retained += len(j.Result.Data)
	}
	if retained != 0 {
		t.Errorf("queue still holds %d bytes of file content", retained)
	}
}

func TestCallFailsWhenQueueCloses(t *testing.T) {
	reg := commands.NewRegistry()
	commands.NewService(history.New()).Register(reg)
	q := jobqueue.NewQueue(nil)
	b := New(q, reg)

	errc := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), commands.ReadFile, commands.Args{FilePath: "x"})
		errc <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for q.Counts()["pending"] != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	q.Close()

	select {
	case err := <-errc:
		if StatusFor(err) != http.StatusServiceUnavailable {
			t.Errorf("Call() error = %v; want a 503 error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call() still blocked after Close")
	}
}

func TestListFiles(t *testing.T) {
	f := newFixture(t)
	f.file(t, "one.txt", []byte("1"))
	f.file(t, "two.txt", []byte("22"))

	resp, data := f.invoke(t, commands.ListFiles, pathBody(f.dir))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.StatusCode, data)
	}
	var body struct {
		OK    bool                 `json:"ok"`
		Files []commands.FileEntry `json:"files"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if !body.OK || len(body.Files) != 2 || body.Files[0].Name != "one.txt" || body.Files[1].Size != 2 {
		t.Errorf("listing = %+v", body)
	}

	resp, data = f.invoke(t, commands.ListFiles, pathBody(t.TempDir()))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"files":[]`) {
		t.Errorf("empty listing = %d %s", resp.StatusCode, data)
	}
}
