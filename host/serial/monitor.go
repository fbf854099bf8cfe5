package serial

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrNotMonitor marks a line that is not a monitor line, such as a debug
// message printed by the drive.
var ErrNotMonitor = errors.New("not a monitor line")

// Frame is one decoded monitor line.
type Frame struct {
	Time   time.Time
	Values []float64
}

// MonitorReader splits the drive's debug stream into monitor frames.
// Monitor lines carry tab-terminated values; any other line is skipped.
type MonitorReader struct {
	r       io.Reader
	sc      *bufio.Scanner
	skipped int

	now func() time.Time
}

// NewMonitorReader reads frames from r.
func NewMonitorReader(r io.Reader) *MonitorReader {
	m := &MonitorReader{r: r, now: time.Now}
	m.Reset()
	return m
}

// Reset drops any partial line. A port that hit its read timeout reports
// EOF once; Reset makes the reader usable again.
func (m *MonitorReader) Reset() {
	m.sc = bufio.NewScanner(m.r)
}

// Skipped returns the number of lines that were not monitor lines.
func (m *MonitorReader) Skipped() int {
	return m.skipped
}

// Next returns the next monitor frame.
func (m *MonitorReader) Next() (Frame, error) {
	for m.sc.Scan() {
		values, err := ParseMonitorLine(m.sc.Text())
		if err != nil {
			m.skipped++
			continue
		}
		return Frame{Time: m.now(), Values: values}, nil
	}
	if err := m.sc.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// ParseMonitorLine decodes one line of tab-terminated values.
func ParseMonitorLine(line string) ([]float64, error) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasSuffix(line, "\t") {
		return nil, ErrNotMonitor
	}
	fields := strings.Split(strings.TrimSuffix(line, "\t"), "\t")
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, ErrNotMonitor
		}
		values[i] = v
	}
	return values, nil
}
