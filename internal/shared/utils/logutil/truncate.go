package logutil

// TruncateForLog cuts s to maxLen bytes and marks the cut with "...".
// Node errors embed revert payloads and raw call data, which would
// otherwise flood a single log line.
func TruncateForLog(s string, maxLen int) string {
	if maxLen <= 0 {
		return "..."
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
