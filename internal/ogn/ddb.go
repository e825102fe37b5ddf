package ogn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yegors/ogn-tracker/internal/reference"
)

// DefaultDDBURL is the OGN device database CSV download
const DefaultDDBURL = "https://ddb.glidernet.org/download/"

// FetchDDB downloads and parses the OGN device database
func FetchDDB(ctx context.Context, client *http.Client, url string) ([]reference.DeviceInfo, error) {
	if url == "" {
		url = DefaultDDBURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	devices, err := ParseDDB(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse device database: %w", err)
	}
	return devices, nil
}

// ParseDDB parses the device database CSV. Fields are quoted with single
// quotes; the header line starts with '#'.
func ParseDDB(r io.Reader) ([]reference.DeviceInfo, error) {
	var devices []reference.DeviceInfo

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := splitQuoted(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(fields) < 7 {
			return nil, fmt.Errorf("line %d: expected 7 fields, got %d", lineNo, len(fields))
		}

		devices = append(devices, reference.DeviceInfo{
			DeviceType:   fields[0],
			DeviceID:     strings.ToUpper(fields[1]),
			Model:        fields[2],
			Registration: fields[3],
			CN:           fields[4],
			Tracked:      fields[5] == "Y",
			Identified:   fields[6] == "Y",
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read device database: %w", err)
	}
	return devices, nil
}

// splitQuoted splits one comma separated line where fields may be wrapped in
// single quotes. A doubled quote inside a quoted field is a literal quote.
func splitQuoted(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	quoted := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quoted && ch == '\'':
			if i+1 < len(line) && line[i+1] == '\'' {
				cur.WriteByte('\'')
				i++
				continue
			}
			quoted = false
		case quoted:
			cur.WriteByte(ch)
		case ch == '\'':
			quoted = true
		case ch == ',':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	return append(fields, cur.String()), nil
}
