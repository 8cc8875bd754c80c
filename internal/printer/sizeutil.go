package printer

import "fmt"

// FormatBytes returns a human-readable binary byte size.
// Examples: "0 B", "512 B", "1.5 KiB", "700.0 MiB", "10.0 GiB".
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		if bytes < 0 {
			bytes = 0
		}
		return fmt.Sprintf("%d B", bytes)
	}

	units := []string{"KiB", "MiB", "GiB", "TiB"}
	size := float64(bytes) / 1024
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", size, units[unit])
}

// FormatDuration returns a media duration as `m:ss` or `h:mm:ss`.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}

	total := int(seconds + 0.5)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
