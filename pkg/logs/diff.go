package logs

import "strings"

// Differ streams captured terminal output incrementally. Each call to
// Next takes the full current capture and returns only what the consumer
// has not seen yet.
type Differ struct {
	prev string
}

// Next returns the delta between the previous capture and curr, then
// remembers curr. When curr extends the previous capture, the delta is
// the new suffix; otherwise it is the remainder past the longest common
// line prefix.
func (d *Differ) Next(curr string) string {
	delta := Delta(d.prev, curr)
	d.prev = curr
	return delta
}

// Delta computes the incremental output between two captures.
func Delta(prev, curr string) string {
	if prev == "" {
		return curr
	}
	if strings.HasPrefix(curr, prev) {
		return curr[len(prev):]
	}

	prevLines := strings.Split(prev, "\n")
	currLines := strings.Split(curr, "\n")
	common := 0
	for common < len(prevLines) && common < len(currLines) && prevLines[common] == currLines[common] {
		common++
	}
	return strings.Join(currLines[common:], "\n")
}
