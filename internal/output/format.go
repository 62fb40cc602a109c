package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/tkjaer/mtr/internal/shared"
)

const (
	hostColumnWidth = 45
	noValue         = "---"
)

// FormatHeader returns the title line and the column header of the hop table.
func FormatHeader(s shared.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "mtr to %s (%s)\n", s.Destination, s.DestinationIP)
	fmt.Fprintf(&b, "%3s %-*s %6s %5s %6s %6s %6s %6s %6s\n",
		"", hostColumnWidth, "Host", "Loss%", "Snt", "Last", "Avg", "Best", "Wrst", "StDev")
	return b.String()
}

// FormatHop renders one row of the hop table.
func FormatHop(h shared.HopSnapshot, noDNS bool) string {
	stddev := noValue
	if h.Received > 1 && h.StdDev != nil {
		stddev = formatMs(h.StdDev)
	}
	return fmt.Sprintf("%3d. %-*s %5.1f%% %5d %6s %6s %6s %6s %6s",
		h.TTL, hostColumnWidth, truncate(hostLabel(h, noDNS), hostColumnWidth),
		h.LossPct, h.Sent,
		formatMs(h.Last), formatMs(h.Avg), formatMs(h.Best), formatMs(h.Worst), stddev)
}

// WriteTable writes the complete hop table for a snapshot.
func WriteTable(w io.Writer, s shared.Snapshot, noDNS bool) error {
	if _, err := io.WriteString(w, FormatHeader(s)); err != nil {
		return err
	}
	for _, h := range s.Hops {
		if _, err := fmt.Fprintln(w, FormatHop(h, noDNS)); err != nil {
			return err
		}
	}
	return nil
}

// tableLines is the number of lines WriteTable produces.
func tableLines(s shared.Snapshot) int {
	return 2 + len(s.Hops)
}

func hostLabel(h shared.HopSnapshot, noDNS bool) string {
	if h.IP == "" {
		return shared.UnknownHost
	}
	if h.PTR != "" && !noDNS {
		return h.PTR + " (" + h.IP + ")"
	}
	return h.IP
}

func formatMs(v *float64) string {
	if v == nil {
		return noValue
	}
	return fmt.Sprintf("%.1f", *v)
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width]
}
