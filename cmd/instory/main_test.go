/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zalando/go-keyring"
	"golang.org/x/image/font/gofont/goregular"

	"instory/internal/backend"
	"instory/internal/reader"
	"instory/internal/version"
)

const outline = `Title: Lighthouse
# Shore
Panel 1 Waves against the rocks.
MIRA: Someone left the light on.
* Climb the stairs -> Lamp Room
* Walk away -> Village

# Lamp Room
CAPTION: Nobody is here.
-> Village

# Village
SFX: DONG
`

type cli struct {
	t   *testing.T
	dir string
	cfg string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	keyring.MockInit()
	for _, k := range []string{"INSTORY_CONFIG", "INSTORY_DB_DSN", "INSTORY_DB_DIALECT", "DATABASE_URL", "INSTORY_FILES_DIR", "INSTORY_TELEMETRY"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	yml := "server:\n" +
		"  db_dialect: sqlite\n" +
		"  dsn: " + filepath.Join(dir, "instory.sqlite") + "\n" +
		"  files_dir: " + filepath.Join(dir, "files") + "\n" +
		"logging:\n  level: error\n"
	if err := os.WriteFile(cfg, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	return &cli{t: t, dir: dir, cfg: cfg}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	a := &app{out: &out, in: strings.NewReader("")}
	root := newRootCmd(a)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", c.cfg}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("instory %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// lastField returns the story id commands print at the end of their output.
func lastField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}

func TestVersionCommand(t *testing.T) {
	c := newCLI(t)
	if got := strings.TrimSpace(c.mustRun("version")); got != version.String() {
		t.Fatalf("version = %q, want %q", got, version.String())
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	c := newCLI(t)
	src := filepath.Join(c.dir, "lighthouse.txt")
	if err := os.WriteFile(src, []byte(outline), 0o600); err != nil {
		t.Fatal(err)
	}

	out := c.mustRun("import", src, "--author", "alice", "--dry-run")
	if !strings.Contains(out, "3 scenes") {
		t.Fatalf("dry run = %q", out)
	}
	id := lastField(c.mustRun("import", src, "--author", "alice"))
	if id == "" {
		t.Fatal("no story id printed")
	}

	list := c.mustRun("stories", "--author", "alice")
	if !strings.Contains(list, id) || !strings.Contains(list, "Lighthouse") {
		t.Fatalf("stories = %q", list)
	}

	pdf := filepath.Join(c.dir, "out", "lighthouse.pdf")
	c.mustRun("export", id, "-f", "pdf", "-o", pdf)
	data, err := os.ReadFile(pdf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("pdf header = %q", data[:8])
	}

	batch := filepath.Join(c.dir, "batch")
	out = c.mustRun("export", id, "-f", "svg", "-f", "cbz", "-o", batch)
	written := strings.Fields(out)
	if len(written) != 4 {
		t.Fatalf("batch wrote %v", written)
	}
	for _, f := range written {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}

	zip := filepath.Join(c.dir, "lighthouse.zip")
	c.mustRun("bundle", "export", id, "-o", zip)
	copyID := lastField(c.mustRun("bundle", "import", zip, "--author", "bob"))
	if copyID == "" || copyID == id {
		t.Fatalf("bundle import id = %q (source %q)", copyID, id)
	}
	list = c.mustRun("stories", "--author", "bob")
	if !strings.Contains(list, copyID) || strings.Contains(list, id) {
		t.Fatalf("bob's stories = %q", list)
	}
}

func TestImportReportsOutlineErrors(t *testing.T) {
	c := newCLI(t)
	src := filepath.Join(c.dir, "bad.txt")
	if err := os.WriteFile(src, []byte("# Only\n* Nowhere ->\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := c.run("import", src, "--author", "alice")
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("err = %v", err)
	}
}

func TestCommandsNeedArguments(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{
		{"export"},
		{"bundle", "import"},
		{"import", "x.txt"},
		{"login"},
		{"read"},
	} {
		if _, err := c.run(args...); err == nil {
			t.Errorf("instory %v: expected error", args)
		}
	}
}

func TestInvalidConfigFails(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run("--dialect", "oracle", "stories"); err == nil || !strings.Contains(err.Error(), "config") {
		t.Fatalf("err = %v", err)
	}
}

func TestExportWithFontFlag(t *testing.T) {
	c := newCLI(t)
	src := filepath.Join(c.dir, "lighthouse.txt")
	ttf := filepath.Join(c.dir, "go.ttf")
	if err := os.WriteFile(src, []byte(outline), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ttf, goregular.TTF, 0o600); err != nil {
		t.Fatal(err)
	}
	id := lastField(c.mustRun("import", src, "--author", "alice"))

	png := filepath.Join(c.dir, "shore.png")
	c.mustRun("export", id, "-f", "png", "-o", png, "--font", "Comic Neue="+ttf, "--font", "Comic Neue:bold="+ttf)
	if st, err := os.Stat(png); err != nil || st.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
	if _, err := c.run("export", id, "-f", "png", "-o", png, "--font", "Comic Neue"); err == nil || !strings.Contains(err.Error(), "family") {
		t.Fatalf("malformed --font err = %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	c := newCLI(t)
	if got := strings.TrimSpace(c.mustRun("config", "path")); got != c.cfg {
		t.Fatalf("path = %q, want %q", got, c.cfg)
	}
	if _, err := c.run("config", "init"); err == nil {
		t.Fatal("init over an existing file should fail without --force")
	}

	t.Setenv("INSTORY_AUTH_SECRET", "hunter2")
	out := c.mustRun("config", "show")
	for _, want := range []string{"db_dialect: sqlite", "# server.auth_secret from INSTORY_AUTH_SECRET", "********"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("show leaked the auth secret")
	}

	t.Setenv("INSTORY_AUTH_SECRET", "")
	c.mustRun("config", "init", "--force")
	out = c.mustRun("config", "show")
	if !strings.Contains(out, "db_dialect: sqlite") || strings.Contains(out, c.dir) {
		t.Fatalf("init --force did not reset to defaults:\n%s", out)
	}
}

type fakeSteps struct {
	calls []string
	views map[string]backend.SessionView
}

func (f *fakeSteps) Step(_ context.Context, _ string, action string, body any) (backend.SessionView, error) {
	if m, ok := body.(map[string]string); ok && m["choice_id"] != "" {
		action += ":" + m["choice_id"]
	}
	f.calls = append(f.calls, action)
	return f.views[action], nil
}

func TestReadLoop(t *testing.T) {
	shore := backend.SessionView{ID: "s1", Snapshot: reader.Snapshot{
		SceneID: "a", SceneTitle: "Shore", PanelCount: 1,
		Panels:  []reader.PanelView{{ID: "p1", Current: true}},
		Choices: []reader.ChoiceView{{ID: "c1", Text: "Climb"}, {ID: "c2", Text: "Walk away"}},
	}}
	lamp := backend.SessionView{ID: "s1", Snapshot: reader.Snapshot{SceneID: "b", SceneTitle: "Lamp Room", PanelCount: 1}}
	end := backend.SessionView{ID: "s1", Snapshot: reader.Snapshot{SceneID: "b", SceneTitle: "Lamp Room", Ended: true}}
	f := &fakeSteps{views: map[string]backend.SessionView{"choose:c1": lamp, "next": end}}

	var out bytes.Buffer
	if err := readLoop(context.Background(), f, shore, strings.NewReader("7\n1\n\n"), &out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"choose:c1", "next"}, f.calls); diff != "" {
		t.Errorf("steps (-want +got):\n%s", diff)
	}
	for _, want := range []string{"== Shore ==", "1) Climb", "2) Walk away", readHelp, "== Lamp Room ==", "The End"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output misses %q:\n%s", want, out.String())
		}
	}
}

func TestReadLoopQuit(t *testing.T) {
	v := backend.SessionView{ID: "s1", Snapshot: reader.Snapshot{SceneID: "a", SceneTitle: "Shore"}}
	f := &fakeSteps{}
	if err := readLoop(context.Background(), f, v, strings.NewReader("q\n"), &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("calls = %v", f.calls)
	}
}
