/*
PURPOSE:
  Extracts a throughput measurement from the textual output of a probe.
  Probes print FPS counter lines in three tiers: overall, average and last.

REQUIREMENTS:
  User-specified:
  - An "overall" line for the expected stream count is authoritative and ends parsing.
  - Otherwise prefer the "average" line for the expected count, then the closest count,
    then the most recent "last" line.
  - No match at all is a valid outcome, not an error.

  Implementation-discovered:
  - Output arrives progressively, so lines are fed one at a time (Collector).
  - GStreamer prints "FpsCounter(average 5.00sec): ..."; the bare "average(5.00sec): ..."
    form is accepted too.
  - Lines claiming zero streams cannot yield a per-stream figure and are ignored.

ARCHITECTURE INTEGRATION:
  - Called by: internal/probe (executor), internal/cli (parse command)
  - Produces: internal/model.Measurement (without exit code)

ERROR HANDLING:
  - Malformed lines are ignored silently.
  - Parse returns an error only when the reader itself fails; the measurement
    collected up to that point is still returned.

IMPLEMENTATION RULES:
  - Ties in closest-match resolution go to the smallest stream count.
  - Never log from this package.

USAGE:
  m, err := telemetry.Parse(stdout, 8)

SELF-HEALING INSTRUCTIONS:
  - If the counter element changes its format, update fpsLineRegex and the tests.

RELATED FILES:
  - internal/probe/executor.go

MAINTENANCE:
  - Update when new telemetry tiers are introduced.
*/

package telemetry

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/daryltucker/density-runner/internal/model"
)

// Tier is the window kind of an FPS counter line.
type Tier string

const (
	TierOverall Tier = "overall"
	TierAverage Tier = "average"
	TierLast    Tier = "last"
)

var fpsLineRegex = regexp.MustCompile(
	`(overall|average|last)(?: +|\()([\d.]+)sec\): total=([\d.]+) fps, number-streams=(\d+), per-stream=([\d.]+) fps`,
)

// maxLineSize bounds a single telemetry line. Pipelines echo their full
// launch string on error, which can be long.
const maxLineSize = 1024 * 1024

// Line is one recognised FPS counter line.
type Line struct {
	Tier       Tier
	Window     float64
	TotalFPS   float64
	NumStreams int
	PerStream  float64
}

// ParseLine matches a single line of probe output.
// The second return value is false if the line is not an FPS counter line.
func ParseLine(s string) (Line, bool) {
	m := fpsLineRegex.FindStringSubmatch(s)
	if m == nil {
		return Line{}, false
	}

	window, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Line{}, false
	}
	total, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Line{}, false
	}
	streams, err := strconv.Atoi(m[4])
	if err != nil || streams <= 0 {
		return Line{}, false
	}
	perStream, err := strconv.ParseFloat(m[5], 64)
	if err != nil {
		return Line{}, false
	}

	return Line{
		Tier:       Tier(m[1]),
		Window:     window,
		TotalFPS:   total,
		NumStreams: streams,
		PerStream:  perStream,
	}, true
}

func (l Line) measurement() model.Measurement {
	return model.NewMeasurement(l.TotalFPS, l.NumStreams, l.PerStream)
}

// Collector accumulates FPS counter lines for one probe.
// It is not safe for concurrent use.
type Collector struct {
	channels int
	overall  *Line
	average  map[int]Line
	last     *Line
}

// NewCollector creates a collector targeting the given stream count.
func NewCollector(channels int) *Collector {
	return &Collector{
		channels: channels,
		average:  make(map[int]Line),
	}
}

// Feed consumes one line of output. It returns true once an authoritative
// overall line has been seen; further lines are then ignored.
func (c *Collector) Feed(s string) bool {
	if c.overall != nil {
		return true
	}

	l, ok := ParseLine(s)
	if !ok {
		return false
	}

	switch l.Tier {
	case TierOverall:
		if l.NumStreams == c.channels {
			c.overall = &l
			return true
		}
	case TierAverage:
		c.average[l.NumStreams] = l
	case TierLast:
		c.last = &l
	}
	return false
}

// Done reports whether an authoritative overall line was found.
func (c *Collector) Done() bool {
	return c.overall != nil
}

// Result resolves the best available measurement.
func (c *Collector) Result() model.Measurement {
	if c.overall != nil {
		return c.overall.measurement()
	}

	if len(c.average) > 0 {
		if l, ok := c.average[c.channels]; ok {
			return l.measurement()
		}
		return c.average[c.closestAverage()].measurement()
	}

	if c.last != nil {
		return c.last.measurement()
	}

	return model.Measurement{}
}

// closestAverage returns the average key nearest to channels, smallest key on ties.
func (c *Collector) closestAverage() int {
	keys := make([]int, 0, len(c.average))
	for k := range c.average {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if absDiff(k, c.channels) < absDiff(best, c.channels) {
			best = k
		}
	}
	return best
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Parse reads r line by line until EOF or an authoritative overall line and
// resolves the measurement for channels streams.
func Parse(r io.Reader, channels int) (model.Measurement, error) {
	c := NewCollector(channels)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if c.Feed(scanner.Text()) {
			break
		}
	}

	return c.Result(), scanner.Err()
}
