/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"instory/internal/telemetry"
)

func stubUploader(t *testing.T) *[][]byte {
	t.Helper()
	var got [][]byte
	old := uploader
	uploader = func(b []byte) { got = append(got, b) }
	t.Cleanup(func() { uploader = old })
	return &got
}

func TestReportWritesFileAndUploads(t *testing.T) {
	sent := stubUploader(t)
	dir := filepath.Join(t.TempDir(), "nested")
	path, err := Report(dir, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("Report error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("report in %s, want %s", path, dir)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "InStory Crash Report") || !strings.Contains(s, "Panic: boom") || !strings.Contains(s, "stacktrace") {
		t.Fatalf("report content: %s", s)
	}
	if len(*sent) != 1 || !bytes.Equal((*sent)[0], b) {
		t.Fatalf("uploaded %d reports", len(*sent))
	}
}

// TestRecover_Panicking ensures Recover handles a panic, writes a report
// and does not terminate the test process due to injected exitFn.
func TestRecover_Panicking(t *testing.T) {
	stubUploader(t)
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	called := 0
	oldExit := exitFn
	exitFn = func(code int) { called = code }
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	func() {
		defer Recover(dir)
		panic("boom")
	}()

	files, _ := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	if len(files) != 1 {
		t.Fatalf("expected one crash report, got %v", files)
	}
	b, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Contains(b, []byte("Panic: boom")) {
		t.Fatalf("report does not contain panic: %s", string(b))
	}
	if called != 2 {
		t.Fatalf("expected exit code 2, got %d", called)
	}
}

func TestPanicReporterKeepsRunning(t *testing.T) {
	stubUploader(t)
	dir := t.TempDir()
	PanicReporter(dir)("handler exploded", []byte("stack"))
	files, _ := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	if len(files) != 1 {
		t.Fatalf("reports = %v", files)
	}
}

func TestUploadPending(t *testing.T) {
	stubUploader(t)
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
	}))
	defer srv.Close()
	c := telemetry.New(telemetry.Config{OptIn: true, CrashURL: srv.URL})
	defer c.Close()

	dir := t.TempDir()
	if _, err := Report(dir, "first", nil); err != nil {
		t.Fatal(err)
	}
	n, err := UploadPending(dir, c)
	if err != nil || n != 1 {
		t.Fatalf("UploadPending = %d, %v", n, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)

	mu.Lock()
	if len(bodies) != 1 || !strings.Contains(bodies[0], "Panic: first") {
		t.Errorf("uploaded = %q", bodies)
	}
	mu.Unlock()
	if n, _ := UploadPending(dir, c); n != 0 {
		t.Errorf("sent reports offered again: %d", n)
	}
	if sent, _ := filepath.Glob(filepath.Join(dir, "*.sent")); len(sent) != 1 {
		t.Errorf("sent markers = %v", sent)
	}
}
