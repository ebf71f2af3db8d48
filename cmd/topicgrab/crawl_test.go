package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/topicgrab/topicgrab/internal/config"
)

func TestNewCrawlCmd_flags(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	for _, name := range []string{
		"mode", "formats", "min-width", "min-height", "save-dir", "pattern",
		"page-delay-min", "page-delay-max", "image-delay-min", "image-delay-max",
		"concurrency", "config", "history", "history-dir", "report",
		"json-events", "dump-failed-dates",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
}

func TestBuildCrawlConfig_flagOverlay(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	if err := cmd.ParseFlags([]string{
		"--mode", "free",
		"--save-dir", "/tmp/out",
		"--pattern", "{YYYY}/{filename}",
		"--formats", ".jpg,.png",
		"--min-width", "300",
		"--min-height", "200",
		"--page-delay-min", "0",
		"--page-delay-max", "0.5",
		"--concurrency", "2",
		"--history",
		"--history-dir", "/tmp/hist",
		"--dump-failed-dates", "/tmp/dumps",
	}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := buildCrawlConfig(cmd)
	if err != nil {
		t.Fatalf("buildCrawlConfig() error = %v", err)
	}

	if cfg.Mode != config.ModeFree {
		t.Errorf("Mode = %q, want free", cfg.Mode)
	}
	if cfg.SaveDir != "/tmp/out" {
		t.Errorf("SaveDir = %q", cfg.SaveDir)
	}
	if cfg.NamingPattern != "{YYYY}/{filename}" {
		t.Errorf("NamingPattern = %q", cfg.NamingPattern)
	}
	if len(cfg.AllowedExtensions) != 2 || cfg.AllowedExtensions[0] != ".jpg" {
		t.Errorf("AllowedExtensions = %v", cfg.AllowedExtensions)
	}
	if cfg.MinWidth != 300 || cfg.MinHeight != 200 {
		t.Errorf("min resolution = %dx%d", cfg.MinWidth, cfg.MinHeight)
	}
	if cfg.PageDelay.Min != 0 || cfg.PageDelay.Max != 0.5 {
		t.Errorf("PageDelay = %+v", cfg.PageDelay)
	}
	if cfg.ConcurrentDownloads != 2 {
		t.Errorf("ConcurrentDownloads = %d", cfg.ConcurrentDownloads)
	}
	if !cfg.SaveHistory || cfg.HistoryDir != "/tmp/hist" {
		t.Errorf("history settings = %v %q", cfg.SaveHistory, cfg.HistoryDir)
	}
	if cfg.DebugDumpDir != "/tmp/dumps" {
		t.Errorf("DebugDumpDir = %q", cfg.DebugDumpDir)
	}
}

func TestBuildCrawlConfig_defaultsWhenUnset(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := buildCrawlConfig(cmd)
	if err != nil {
		t.Fatalf("buildCrawlConfig() error = %v", err)
	}
	if cfg.Mode != config.ModeNext {
		t.Errorf("Mode = %q, want default next", cfg.Mode)
	}
	if cfg.NamingPattern != config.DefaultNamingPattern {
		t.Errorf("NamingPattern = %q, want default", cfg.NamingPattern)
	}
	if cfg.ConcurrentDownloads != config.DefaultConcurrentDownloads {
		t.Errorf("ConcurrentDownloads = %d, want default", cfg.ConcurrentDownloads)
	}
}

func TestBuildCrawlConfig_explicitMissingConfigFile(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	if err := cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if _, err := buildCrawlConfig(cmd); err == nil {
		t.Error("buildCrawlConfig() error = nil, want not-found error")
	}
}

func TestBuildCrawlConfig_generatedTemplateLoads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".topicgrab")
	initCmd := NewInitCmd()
	initCmd.SetOut(&bytes.Buffer{})
	initCmd.SetArgs([]string{"-o", path})
	if err := initCmd.Execute(); err != nil {
		t.Fatalf("init Execute() error = %v", err)
	}

	cmd := NewCrawlCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--save-dir", "/tmp/x"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := buildCrawlConfig(cmd)
	if err != nil {
		t.Fatalf("buildCrawlConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated template is not a valid config: %v", err)
	}
	if cfg.SaveDir != "/tmp/x" {
		t.Errorf("flag did not override file value: SaveDir = %q", cfg.SaveDir)
	}
}

// startTopicServer serves one topic page with a single GIF image.
func startTopicServer(t *testing.T) *httptest.Server {
	t.Helper()

	// 1x1 GIF, small enough to inline.
	gif := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x00\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

	mux := http.NewServeMux()
	mux.HandleFunc("/read.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>CLI Topic</title></head><body>
<span id="subject_tpc">CLI Topic</span>
<div class="tipad">发表于: 2023-11-05 14:30</div>
<div id="read_tpc"><img src="/img/a.gif"></div>
</body></html>`)
	})
	mux.HandleFunc("/img/a.gif", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gif)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func crawlArgs(server *httptest.Server, saveDir string, extra ...string) []string {
	args := []string{
		"crawl",
		"--save-dir", saveDir,
		"--page-delay-min", "0", "--page-delay-max", "0",
		"--image-delay-min", "0", "--image-delay-max", "0",
	}
	args = append(args, extra...)
	return append(args, server.URL+"/read.php")
}

func TestCrawlCmd_endToEnd(t *testing.T) {
	t.Parallel()

	server := startTopicServer(t)
	saveDir := t.TempDir()

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(crawlArgs(server, saveDir))

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	saved := filepath.Join(saveDir, "CLI Topic", "a.gif")
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("downloaded image missing: %v", err)
	}
	if !strings.Contains(out.String(), "Crawl finished") {
		t.Errorf("output missing summary: %q", out.String())
	}
}

func TestCrawlCmd_jsonEvents(t *testing.T) {
	t.Parallel()

	server := startTopicServer(t)

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(crawlArgs(server, t.TempDir(), "--json-events"))

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var sawFinished bool
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("non-JSON line in event stream: %q", line)
		}
		if ev.Type == "finished" {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Error("event stream missing finished event")
	}
}

func TestCrawlCmd_writesReport(t *testing.T) {
	t.Parallel()

	server := startTopicServer(t)
	reportPath := filepath.Join(t.TempDir(), "out", "report.md")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(crawlArgs(server, t.TempDir(), "--report", reportPath))

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	content, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(content), "# Crawl Report") {
		t.Error("report missing header")
	}
	if !strings.Contains(string(content), "CLI Topic") {
		t.Error("report missing page title")
	}
}

func TestCrawlCmd_requiresStartURL(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"crawl"})

	if err := root.Execute(); err == nil {
		t.Error("Execute() error = nil, want missing-argument error")
	}
}
