package tracker

import (
	"strings"

	"github.com/satwatch/satwatch-service/types"
)

// TLE element lines are fixed-width 69-column records. Some feeds pad or
// truncate trailing whitespace, so only the leading line number and the
// overall shape are checked here; full checksum validation is left to the
// orbital propagator consuming the lines.
const tleLineLength = 69

// ParseTLE splits raw TLE text into satellites. The format is groups of
// three non-empty lines: name, line 1, line 2. Groups with malformed
// element lines are skipped and counted; the error return fires only when
// the payload yields no satellites at all.
func ParseTLE(data []byte) ([]types.Satellite, int, error) {
	rawLines := strings.Split(string(data), "\n")

	lines := make([]string, 0, len(rawLines))
	for _, line := range rawLines {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) < 3 {
		return nil, 0, types.Errorf(types.ErrTLEMalformed, "payload has %d non-empty lines", len(lines))
	}

	satellites := make([]types.Satellite, 0, len(lines)/3)
	skipped := 0

	for i := 0; i+2 < len(lines); i += 3 {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !validElementLine(line1, '1') || !validElementLine(line2, '2') {
			skipped++
			continue
		}

		satellites = append(satellites, types.Satellite{
			Name:  name,
			Line1: line1,
			Line2: line2,
		})
	}

	if len(satellites) == 0 {
		return nil, skipped, types.Errorf(types.ErrTLEMalformed, "no valid satellites in payload")
	}

	return satellites, skipped, nil
}

func validElementLine(line string, number byte) bool {
	if len(line) < tleLineLength-5 || len(line) > tleLineLength+5 {
		return false
	}
	return line[0] == number && line[1] == ' '
}
