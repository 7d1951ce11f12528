package utils

import "fmt"

// Bytes formats a byte count in human-readable form.
// Examples:
//   - 512 becomes "512B"
//   - 2048 becomes "2.0KiB"
//   - 5242880 becomes "5.0MiB"
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
