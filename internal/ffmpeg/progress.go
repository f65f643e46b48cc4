package ffmpeg

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timePattern     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// progressParser turns ffmpeg stderr lines into percentages.
//
// The first Duration line fixes the total unless a duration was preset.
// Every time= line then yields min(elapsed*100/total, 99); 100 is left for
// the caller to report after a clean exit. Reported values never decrease.
type progressParser struct {
	duration float64
	last     int
}

func newProgressParser(preset float64) *progressParser {
	return &progressParser{duration: preset, last: -1}
}

// feed parses one line and returns a new percentage when it advanced.
func (p *progressParser) feed(line string) (int, bool) {
	if p.duration <= 0 {
		if m := durationPattern.FindStringSubmatch(line); m != nil {
			p.duration = clockSeconds(m[1:])
		}
		return 0, false
	}

	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	elapsed := clockSeconds(m[1:])
	percent := min(int(elapsed*100/p.duration), 99)
	if percent <= p.last {
		return 0, false
	}
	p.last = percent
	return percent, true
}

func clockSeconds(parts []string) float64 {
	h, _ := strconv.ParseFloat(parts[0], 64)
	m, _ := strconv.ParseFloat(parts[1], 64)
	s, _ := strconv.ParseFloat(parts[2], 64)
	return h*3600 + m*60 + s
}

// scanLines splits on both \r and \n; ffmpeg rewrites its stats line with
// carriage returns.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// readLines sends the non-empty lines of r to lines and closes it. If the
// scanner gives up on an oversized line the rest of r is discarded, so the
// writer never blocks on a full pipe.
func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines <- line
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// tail keeps the last n lines written to it.
type tail struct {
	lines []string
	n     int
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) add(line string) {
	if len(t.lines) == t.n {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.n-1]
	}
	t.lines = append(t.lines, line)
}

func (t *tail) last() string {
	if len(t.lines) == 0 {
		return ""
	}
	return t.lines[len(t.lines)-1]
}
