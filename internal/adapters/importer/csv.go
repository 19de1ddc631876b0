package importer

import (
	"fmt"
	"strings"
)

// ParseCSV parses the naive comma-separated layout the import templates use:
// first non-blank line is the header, fields are split on every comma and
// trimmed. Quoting and embedded commas are not supported; values containing
// commas must come in through the JSON import instead.
func ParseCSV(text string) ([]map[string]string, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	headers := strings.Split(lines[0], ",")
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	records := make([]map[string]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := strings.Split(line, ",")
		record := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(values) {
				record[header] = strings.TrimSpace(values[i])
			} else {
				record[header] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}
