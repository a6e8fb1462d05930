package reporting

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flexfinder/internal/models"
	"flexfinder/internal/neighbor"
	"flexfinder/internal/resolver"
	"flexfinder/internal/subnet"
)

func newSession(t *testing.T) *resolver.Session {
	t.Helper()

	local := netip.MustParseAddr("10.0.0.5")

	s, err := resolver.NewSession("aa:bb:cc:dd:ee:ff", resolver.Options{
		Name:   "<flex-1>",
		Local:  local,
		Policy: subnet.ClassC(local),
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	return s
}

func TestGenerateSessionReport(t *testing.T) {
	s := newSession(t)
	s.Started = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	s.Finished = s.Started.Add(2 * time.Second)
	s.State = resolver.StateResolved
	s.History = []resolver.State{resolver.StateInit, resolver.StateCheckCache, resolver.StateScanning, resolver.StateCheckCacheAgain, resolver.StateResolved}
	s.Scanned = true
	s.Target.ResolvedIP = netip.MustParseAddr("10.0.0.42")
	s.Report = models.ScanReport{
		Responders: []netip.Addr{netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.42")},
		Probed:     254,
		Total:      254,
		Complete:   true,
		Elapsed:    1800 * time.Millisecond,
	}
	s.Snapshot = neighbor.NewSnapshot([]models.Neighbor{
		{IP: netip.MustParseAddr("10.0.0.42"), MAC: "aa:bb:cc:dd:ee:ff"},
	})

	path := filepath.Join(t.TempDir(), "report.html")

	filename, err := GenerateSessionReport(s, "html", path)
	if err != nil {
		t.Fatalf("Failed to generate report: %v", err)
	}

	if filename != path {
		t.Errorf("Expected report at %s, got %s", path, filename)
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read report file: %v", err)
	}
	html := string(content)

	for _, want := range []string{
		"flexfinder Discovery Report",
		"&lt;flex-1&gt;",
		"RESOLVED",
		`<tr class="target"><td>10.0.0.42</td><td>aa:bb:cc:dd:ee:ff</td></tr>`,
		"<td>10.0.0.1</td><td>unknown</td>",
		"INIT &rarr; CHECK_CACHE &rarr; SCANNING",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Report missing %q", want)
		}
	}

	if strings.Contains(html, "<flex-1>") {
		t.Error("Robot name was not escaped")
	}
}

func TestGenerateSessionReportCacheHit(t *testing.T) {
	s := newSession(t)
	s.State = resolver.StateResolved
	s.Target.ResolvedIP = netip.MustParseAddr("10.0.0.42")

	path := filepath.Join(t.TempDir(), "report.html")
	if _, err := GenerateSessionReport(s, "html", path); err != nil {
		t.Fatalf("Failed to generate report: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report file: %v", err)
	}

	if !strings.Contains(string(content), "no sweep was needed") {
		t.Error("Report should say the sweep was skipped")
	}
	if !strings.Contains(string(content), "No hosts responded") {
		t.Error("Report should have an empty responder table")
	}
}

func TestGenerateSessionReportFormat(t *testing.T) {
	if _, err := GenerateSessionReport(newSession(t), "pdf", ""); err == nil {
		t.Error("Expected an error for an unsupported format")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "0s",
		250 * time.Millisecond:  "250 ms",
		1834 * time.Millisecond: "1.83s",
	}

	for d, want := range cases {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
