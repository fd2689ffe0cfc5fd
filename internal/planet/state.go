package planet

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the parsed content of a state.txt or state.yaml sidecar:
// the sequence number and timestamp it was generated at.
type State struct {
	Sequence  int64
	Timestamp time.Time
}

// ParseStateTxt parses the osmChange "state.txt" key=value format:
//
//	#Fri Aug 01 00:00:00 UTC 2023
//	sequenceNumber=5123456
//	timestamp=2023-08-01T00\:00\:00Z
func ParseStateTxt(r io.Reader) (*State, error) {
	state := &State{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "sequenceNumber":
			seq, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid sequenceNumber %q: %w", value, err)
			}
			state.Sequence = seq
		case "timestamp":
			t, err := parseOSMTimestamp(value)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
			}
			state.Timestamp = t
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading state.txt: %w", err)
	}
	return state, nil
}

// changesetState mirrors the flat mapping in a changeset stream's
// "state.yaml" sidecar, which uses "sequence" and "last_run" rather
// than state.txt's "sequenceNumber"/"timestamp" keys.
type changesetState struct {
	Sequence int64  `yaml:"sequence"`
	LastRun  string `yaml:"last_run"`
}

// ParseStateYAML parses the changeset stream's "state.yaml" sidecar.
func ParseStateYAML(r io.Reader) (*State, error) {
	var raw changesetState
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing state.yaml: %w", err)
	}
	t, err := parseOSMTimestamp(raw.LastRun)
	if err != nil {
		return nil, fmt.Errorf("invalid last_run %q: %w", raw.LastRun, err)
	}
	return &State{Sequence: raw.Sequence, Timestamp: t}, nil
}

// parseOSMTimestamp accepts OSM-style colon-escaped ("\:") ISO-8601
// timestamps as well as plain RFC3339, always in UTC. It also accepts
// "YYYY-MM-DD HH:MM:SS" with a space separator and no zone, read as UTC.
func parseOSMTimestamp(value string) (time.Time, error) {
	unescaped := strings.ReplaceAll(value, `\:`, ":")

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, unescaped); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
