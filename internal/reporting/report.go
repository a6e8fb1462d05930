package reporting

import (
	"fmt"
	"html"
	"net/netip"
	"os"
	"strings"
	"time"

	"flexfinder/internal/resolver"
)

// GenerateSessionReport writes a report of one discovery session to path, or
// to a timestamped file in the working directory when path is empty.
// Currently supports "html" format.
func GenerateSessionReport(s *resolver.Session, format, path string) (string, error) {
	if format != "html" {
		return "", fmt.Errorf("unsupported format: %s", format)
	}

	started := s.Started
	if started.IsZero() {
		started = time.Now()
	}

	filename := path
	if filename == "" {
		filename = fmt.Sprintf("discovery_%s.html", started.Format("20060102_150405"))
	}

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.WriteString(renderHTML(s, started)); err != nil {
		return "", err
	}

	return filename, nil
}

func renderHTML(s *resolver.Session, started time.Time) string {
	resolved := "not resolved"
	if s.Target.Resolved() {
		resolved = s.Target.ResolvedIP.String()
	}

	name := s.Target.Name
	if name == "" {
		name = "unnamed robot"
	}

	var b strings.Builder

	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>flexfinder Discovery Report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .target { color: #2e7d32; font-weight: bold; }
        .outcome-%s { font-weight: bold; }
    </style>
</head>
<body>
    <h1>flexfinder Discovery Report</h1>
    <div class="summary">
        <p><strong>Session:</strong> %s</p>
        <p><strong>Date:</strong> %s</p>
        <p><strong>Robot:</strong> %s (%s)</p>
        <p><strong>Outcome:</strong> <span class="outcome-%s">%s</span></p>
        <p><strong>Address:</strong> %s</p>
        <p><strong>Local Address:</strong> %s</p>
        <p><strong>Duration:</strong> %s</p>
    </div>
`,
		s.ID, strings.ToLower(string(s.State)),
		s.ID, started.Format(time.RFC1123),
		html.EscapeString(name), s.Target.MAC,
		strings.ToLower(string(s.State)), s.State,
		resolved, s.Local, formatDuration(s.Elapsed()))

	b.WriteString(`    <h2>Sweep</h2>
`)

	if !s.Scanned {
		b.WriteString("    <p>Resolved from the neighbor table; no sweep was needed.</p>\n")
	} else {
		r := s.Report
		fmt.Fprintf(&b, `    <table>
        <tbody>
            <tr><th>Candidates</th><td>%d</td></tr>
            <tr><th>Probed</th><td>%d</td></tr>
            <tr><th>Probe Errors</th><td>%d</td></tr>
            <tr><th>Complete</th><td>%t</td></tr>
            <tr><th>Sweep Time</th><td>%s</td></tr>
        </tbody>
    </table>
`, r.Total, r.Probed, r.Errors, r.Complete, formatDuration(r.Elapsed))
	}

	b.WriteString(`
    <h2>Responders</h2>
    <table>
        <thead>
            <tr>
                <th>IP Address</th>
                <th>MAC Address</th>
            </tr>
        </thead>
        <tbody>
`)

	macs := knownMACs(s)

	if len(s.Report.Responders) == 0 {
		b.WriteString("            <tr><td colspan=\"2\">No hosts responded during this session.</td></tr>\n")
	} else {
		for _, addr := range s.Report.Responders {
			mac := macs[addr]
			if mac == "" {
				mac = "unknown"
			}

			class := ""
			if addr == s.Target.ResolvedIP {
				class = ` class="target"`
			}

			fmt.Fprintf(&b, "            <tr%s><td>%s</td><td>%s</td></tr>\n", class, addr, mac)
		}
	}

	b.WriteString(`        </tbody>
    </table>

    <h2>State History</h2>
    <p>`)

	for i, st := range s.History {
		if i > 0 {
			b.WriteString(" &rarr; ")
		}

		b.WriteString(string(st))
	}

	b.WriteString(`</p>
</body>
</html>`)

	return b.String()
}

func knownMACs(s *resolver.Session) map[netip.Addr]string {
	macs := make(map[netip.Addr]string, s.Snapshot.Len())

	for _, e := range s.Snapshot.Entries() {
		macs[e.IP] = e.MAC
	}

	return macs
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return fmt.Sprintf("%d ms", d.Milliseconds())
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
