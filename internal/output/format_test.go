package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tkjaer/mtr/internal/shared"
)

func ms(v float64) *float64 { return &v }

func testSnapshot() shared.Snapshot {
	return shared.Snapshot{
		Destination:    "example.com",
		DestinationIP:  "203.0.113.1",
		DestinationPTR: "www.example.com",
		Cycle:          5,
		FinalTTL:       3,
		Resolved:       true,
		PathHash:       "abc123",
		Timestamp:      time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Hops: []shared.HopSnapshot{
			{
				TTL: 1, IP: "192.0.2.1", PTR: "gw.example.net",
				Sent: 5, Received: 5, LossPct: 0,
				Last: ms(1.2), Avg: ms(1.5), Best: ms(1.0), Worst: ms(2.0), StdDev: ms(0.3),
			},
			{
				TTL: 2, Sent: 5, Received: 0, LossPct: 100,
			},
			{
				TTL: 3, IP: "203.0.113.1", PTR: "www.example.com",
				Sent: 5, Received: 4, LossPct: 20,
				Avg: ms(10.3), Best: ms(9.5), Worst: ms(11), StdDev: ms(0.5),
				Final: true,
			},
		},
	}
}

func TestFormatHop(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name  string
		hop   shared.HopSnapshot
		noDNS bool
		want  []string
	}{
		{
			name: "hostname and address",
			hop:  snap.Hops[0],
			want: []string{"1.", "gw.example.net", "(192.0.2.1)", "0.0%", "5", "1.2", "1.5", "1.0", "2.0", "0.3"},
		},
		{
			name:  "address only without dns",
			hop:   snap.Hops[0],
			noDNS: true,
			want:  []string{"1.", "192.0.2.1", "0.0%", "5", "1.2", "1.5", "1.0", "2.0", "0.3"},
		},
		{
			name: "silent hop",
			hop:  snap.Hops[1],
			want: []string{"2.", "???", "100.0%", "5", "---", "---", "---", "---", "---"},
		},
		{
			name: "last cleared by timeout",
			hop:  snap.Hops[2],
			want: []string{"3.", "www.example.com", "(203.0.113.1)", "20.0%", "5", "---", "10.3", "9.5", "11.0", "0.5"},
		},
		{
			name: "single sample has no stddev",
			hop: shared.HopSnapshot{
				TTL: 4, IP: "192.0.2.4", Sent: 1, Received: 1,
				Last: ms(3), Avg: ms(3), Best: ms(3), Worst: ms(3), StdDev: ms(0),
			},
			want: []string{"4.", "192.0.2.4", "0.0%", "1", "3.0", "3.0", "3.0", "3.0", "---"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Fields(FormatHop(tt.hop, tt.noDNS))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FormatHop() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatHop_TruncatesHost(t *testing.T) {
	hop := shared.HopSnapshot{TTL: 1, IP: "192.0.2.1", PTR: strings.Repeat("a", 60) + ".example.net", Sent: 1}
	row := FormatHop(hop, false)

	// "  1. " prefix, then exactly the host column
	host := row[5 : 5+hostColumnWidth]
	if host != strings.Repeat("a", hostColumnWidth) {
		t.Errorf("host column = %q, want %d a's", host, hostColumnWidth)
	}
}

func TestFormatHeader(t *testing.T) {
	header := FormatHeader(testSnapshot())
	lines := strings.Split(strings.TrimSuffix(header, "\n"), "\n")

	if len(lines) != 2 {
		t.Fatalf("FormatHeader() lines = %d, want 2", len(lines))
	}
	if lines[0] != "mtr to example.com (203.0.113.1)" {
		t.Errorf("title = %q", lines[0])
	}
	want := []string{"Host", "Loss%", "Snt", "Last", "Avg", "Best", "Wrst", "StDev"}
	if diff := cmp.Diff(want, strings.Fields(lines[1])); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	snap := testSnapshot()

	if err := WriteTable(&buf, snap, false); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != tableLines(snap) {
		t.Errorf("WriteTable() lines = %d, want %d", len(lines), tableLines(snap))
	}
	if !strings.HasPrefix(lines[2], "  1. gw.example.net") {
		t.Errorf("first hop row = %q", lines[2])
	}
}

func TestTextOutput_NotLive(t *testing.T) {
	var buf bytes.Buffer
	out := newTextOutputWriter(&buf, false, false)

	out.Update(testSnapshot())
	if buf.Len() != 0 {
		t.Errorf("Update() wrote %q without live redraw", buf.String())
	}

	out.Complete(testSnapshot())
	if !strings.Contains(buf.String(), "mtr to example.com") {
		t.Errorf("Complete() output = %q, want report table", buf.String())
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("report output should not contain escape sequences")
	}
}

func TestTextOutput_LiveRedraw(t *testing.T) {
	var buf bytes.Buffer
	out := newTextOutputWriter(&buf, false, true)

	out.Update(testSnapshot())
	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("first draw should not move the cursor")
	}

	out.Update(testSnapshot())
	if !strings.Contains(buf.String(), "\x1b[5A\x1b[J") {
		t.Errorf("second draw should clear the 5 previous lines, got %q", buf.String())
	}

	buf.Reset()
	out.Complete(testSnapshot())
	if !strings.HasPrefix(buf.String(), "\x1b[5A\x1b[J") {
		t.Errorf("Complete() should replace the live table, got %q", buf.String())
	}
	if out.linesShown != 0 {
		t.Errorf("linesShown = %d after Complete, want 0", out.linesShown)
	}
}
