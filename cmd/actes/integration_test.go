package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/csheth/actes/internal/pdfdoc/pdftest"
	"github.com/csheth/actes/internal/tuitest"
)

func TestViewerCrossesPagesWithWheel(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary and drives it through a PTY")
	}
	t.Parallel()

	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)
	work := t.TempDir()
	pdfPath := filepath.Join(work, "deliberation.pdf")
	doc := pdftest.Build(
		pdftest.Text("Conseil municipal", "Seance du 12 mars"),
		pdftest.Text("Article 2 adopte"),
	)
	if err := os.WriteFile(pdfPath, doc, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "view", pdfPath, "--no-alt-screen", "--no-watch", "--config", filepath.Join(work, "absent.yml")},
		Dir:     work,
		Env:     isolatedEnv(work),
		Width:   100,
		Height:  32,
		Steps: []tuitest.Step{
			tuitest.Pause(time.Second),
			tuitest.Send(tuitest.WheelDown(20, 10)),
			tuitest.Pause(500 * time.Millisecond),
			tuitest.Send(tuitest.WheelDown(20, 10)),
			tuitest.Pause(time.Second),
			tuitest.Send(tuitest.Type("q")),
		},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}

	for _, want := range []string{"Page 1 / 2", "Conseil municipal", "Page 2 / 2", "Article 2 adopte"} {
		if !rec.Contains(want) {
			t.Fatalf("terminal never showed %q\n---- output ----\n%s", want, rec.Plain())
		}
	}
}

func TestViewerGoToPageEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary and drives it through a PTY")
	}
	t.Parallel()

	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)
	work := t.TempDir()
	pdfPath := filepath.Join(work, "arrete.pdf")
	doc := pdftest.Build(pdftest.Text("Premiere page"), pdftest.Text("Deuxieme page"), pdftest.Text("Troisieme page"))
	if err := os.WriteFile(pdfPath, doc, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "view", pdfPath, "--no-alt-screen", "--no-watch", "--config", filepath.Join(work, "absent.yml")},
		Dir:     work,
		Env:     isolatedEnv(work),
		Width:   100,
		Height:  32,
		Steps: []tuitest.Step{
			tuitest.Pause(time.Second),
			tuitest.Send(tuitest.Type("g")),
			tuitest.Send(tuitest.Type("3")),
			tuitest.Send(tuitest.KeyEnter),
			tuitest.Pause(time.Second),
			tuitest.Send(tuitest.KeyCtrlC),
		},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}
	if !rec.Contains("Page 3 / 3") || !rec.Contains("Troisieme page") {
		t.Fatalf("page entry did not reach page 3\n---- output ----\n%s", rec.Plain())
	}
}

// isolatedEnv keeps the run away from the user's session, cache and logs.
func isolatedEnv(dir string) []string {
	return []string{
		"ACTES_SESSION_FILE=" + filepath.Join(dir, "session.json"),
		"ACTES_CACHE_DIR=" + filepath.Join(dir, "cache"),
		"ACTES_LOG_FILE=" + filepath.Join(dir, "actes.log"),
		"ACTES_DOWNLOAD_DIR=" + dir,
	}
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	tmp := t.TempDir()
	name := "actes-integration"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binPath := filepath.Join(tmp, name)
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build CLI: %v\n%s", err, output)
	}
	return binPath
}
