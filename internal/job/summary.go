package job

import (
	"regexp"
	"strings"
)

// SummaryMarker identifies the first line of the import summary in a job log.
const SummaryMarker = "Import Results (SUMMARY)"

// logEntry matches the first line of a timestamped log entry,
// e.g. "[2024-03-01 10:15:02.123 GMT] INFO ...".
var logEntry = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}.* GMT\]`)

// ExtractSummary returns the import summary block of a job log: the line
// containing SummaryMarker and every following line up to, not including,
// the next timestamped entry. Without a following entry the block runs to
// the end of the log. It returns "" when the log has no summary.
func ExtractSummary(log string) string {
	var lines []string
	inSummary := false
	for line := range strings.SplitSeq(strings.TrimSuffix(log, "\n"), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !inSummary {
			if strings.Contains(line, SummaryMarker) {
				inSummary = true
				lines = append(lines, line)
			}
			continue
		}
		if logEntry.MatchString(line) {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
