// Package window selects the recordings that fall inside a time window.
//
// Recording keys look like
//
//	/<YYYY-MM-DD>/<frequency>/<YYYY_MM_DD__HH_MM_SS>[__suffix].<ext>
//
// and a window is a start minute, a duration in minutes and an optional
// frequency label. Selection is substring containment of the per-minute
// timestamp label (and of the frequency label) in the key text, which is the
// matching rule existing clients depend on.
package window

import (
	"fmt"
	"strings"
	"time"
)

const (
	// StartLayout is the layout of a window start in request paths.
	StartLayout = "2006-01-02_15-04"
	// startParseLayout also accepts unpadded fields, e.g. "2020-2-1_9-5".
	startParseLayout = "2006-1-2_15-4"
	// LabelLayout is the layout of the timestamp embedded in object keys.
	LabelLayout = "2006_01_02__15_04_05"
	// DateLayout is the layout of the date path segment of object keys.
	DateLayout = "2006-01-02"
)

// Window is a contiguous run of minute marks
// {Start, Start+1m, ..., Start+(Duration-1)m}, optionally restricted to one
// frequency label.
type Window struct {
	Start     time.Time
	Duration  int
	Frequency string
}

// New builds a Window from a request start string (StartLayout), a duration
// in minutes and an optional frequency label.
func New(start string, duration int, frequency string) (Window, error) {
	t, err := ParseStart(start)
	if err != nil {
		return Window{}, err
	}
	if duration < 0 {
		return Window{}, fmt.Errorf("duration must not be negative, got %d", duration)
	}
	return Window{Start: t, Duration: duration, Frequency: frequency}, nil
}

// ParseStart parses a window start such as "2020-02-10_12-00". Recording
// timestamps carry no zone, so the result is in UTC and only used for
// formatting labels.
func ParseStart(s string) (time.Time, error) {
	t, err := time.Parse(startParseLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("start %q does not match %s: %w", s, StartLayout, err)
	}
	return t, nil
}

// Date returns the window's date segment, e.g. "2020-02-10".
func (w Window) Date() string {
	return w.Start.Format(DateLayout)
}

// Prefix returns the listing prefix covering the window's candidates:
// "/<date>" or "/<date>/<frequency>".
func (w Window) Prefix() string {
	return DatePrefix(w.Date(), w.Frequency)
}

// Labels returns the per-minute timestamp labels of the window in ascending
// order. A zero-length window has no labels.
func (w Window) Labels() []string {
	if w.Duration <= 0 {
		return nil
	}
	labels := make([]string, 0, w.Duration)
	for offset := 0; offset < w.Duration; offset++ {
		labels = append(labels, w.Start.Add(time.Duration(offset)*time.Minute).Format(LabelLayout))
	}
	return labels
}

// Select returns the keys of listing that fall inside w.
//
// For each minute offset in ascending order, every key whose text contains
// that minute's label (and the frequency label, when set) is appended in
// listing order. Keys are not deduplicated across offsets. Select performs no
// I/O and never modifies listing.
func Select(listing []string, w Window) []string {
	selected := []string{}
	if len(listing) == 0 {
		return selected
	}
	for _, label := range w.Labels() {
		for _, key := range listing {
			if w.Frequency != "" && !strings.Contains(key, w.Frequency) {
				continue
			}
			if strings.Contains(key, label) {
				selected = append(selected, key)
			}
		}
	}
	return selected
}

// DatePrefix builds the listing prefix for a date and optional frequency.
// An empty date lists the whole bucket.
func DatePrefix(date, frequency string) string {
	if date == "" {
		return ""
	}
	prefix := "/" + date
	if frequency != "" {
		prefix += "/" + frequency
	}
	return prefix
}

// Key is an object key split positionally into its segments.
type Key struct {
	Date      string
	Frequency string
	Name      string
}

// ParseKey splits an object key on "/" after dropping the leading slash.
// It reports false when the key has fewer than two segments.
func ParseKey(key string) (Key, bool) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) < 2 || parts[1] == "" {
		return Key{}, false
	}
	k := Key{Date: parts[0], Frequency: parts[1]}
	if len(parts) > 2 {
		k.Name = parts[len(parts)-1]
	}
	return k, true
}
