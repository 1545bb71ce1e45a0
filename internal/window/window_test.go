package window

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoMinutes = []string{
	"/2020-02-10/120_5MHz/2020_02_10__12_00_00.wav",
	"/2020-02-10/120_5MHz/2020_02_10__12_01_00.wav",
}

func mustWindow(t *testing.T, start string, duration int, freq string) Window {
	t.Helper()
	w, err := New(start, duration, freq)
	require.NoError(t, err)
	return w
}

func TestSelectBothMinutes(t *testing.T) {
	w := mustWindow(t, "2020-02-10_12-00", 2, "120_5MHz")
	assert.Equal(t, twoMinutes, Select(twoMinutes, w))
}

func TestSelectFirstMinuteOnly(t *testing.T) {
	w := mustWindow(t, "2020-02-10_12-00", 1, "120_5MHz")
	assert.Equal(t, twoMinutes[:1], Select(twoMinutes, w))
}

func TestSelectEmptyListingAndZeroDuration(t *testing.T) {
	w := mustWindow(t, "2020-02-10_12-00", 5, "")
	got := Select(nil, w)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	zero := mustWindow(t, "2020-02-10_12-00", 0, "")
	assert.Empty(t, Select(twoMinutes, zero))
}

func TestSelectFrequencyFilter(t *testing.T) {
	listing := []string{
		"/2020-02-10/90MHz/2020_02_10__12_00_00.ogg",
		"/2020-02-10/120_5MHz/2020_02_10__12_00_00.ogg",
		"/2020-02-10/120_5MHz/2020_02_10__12_00_00__b.ogg",
	}
	w := mustWindow(t, "2020-02-10_12-00", 1, "120_5MHz")
	assert.Equal(t, listing[1:], Select(listing, w))

	all := mustWindow(t, "2020-02-10_12-00", 1, "")
	assert.Equal(t, listing, Select(listing, all))
}

func TestSelectOrdersByOffsetThenListing(t *testing.T) {
	listing := []string{
		"/2020-02-10/b/2020_02_10__12_02_00.wav",
		"/2020-02-10/a/2020_02_10__12_01_00.wav",
		"/2020-02-10/b/2020_02_10__12_00_00.wav",
		"/2020-02-10/a/2020_02_10__12_00_00.wav",
	}
	w := mustWindow(t, "2020-02-10_12-00", 3, "")
	assert.Equal(t, []string{listing[2], listing[3], listing[1], listing[0]}, Select(listing, w))
}

func TestSelectSubstringMatchingIsPreserved(t *testing.T) {
	// The frequency label "5MHz" is contained in "120_5MHz": substring
	// matching selects it.
	w := mustWindow(t, "2020-02-10_12-00", 1, "5MHz")
	assert.Equal(t, twoMinutes[:1], Select(twoMinutes, w))

	// A key containing two minute labels is selected once per matching offset.
	odd := []string{"/2020-02-10/x/2020_02_10__12_00_00-2020_02_10__12_01_00.wav"}
	w2 := mustWindow(t, "2020-02-10_12-00", 2, "")
	assert.Equal(t, []string{odd[0], odd[0]}, Select(odd, w2))
}

func TestSelectCrossesMidnight(t *testing.T) {
	listing := []string{
		"/2020-02-10/f/2020_02_10__23_59_00.wav",
		"/2020-02-11/f/2020_02_11__00_00_00.wav",
	}
	w := mustWindow(t, "2020-02-10_23-59", 2, "")
	assert.Equal(t, "2020-02-10", w.Date())
	assert.Equal(t, listing, Select(listing, w))
}

// Every selected key must contain one of the window's labels and, when set,
// the frequency label.
func TestSelectOnlyReturnsMatchingKeys(t *testing.T) {
	var listing []string
	start := time.Date(2020, 2, 10, 11, 50, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		ts := start.Add(time.Duration(i) * time.Minute).Format(LabelLayout)
		freq := []string{"90MHz", "120_5MHz", "433MHz"}[i%3]
		listing = append(listing, "/2020-02-10/"+freq+"/"+ts+".ogg")
	}
	for _, freq := range []string{"", "90MHz", "120_5MHz"} {
		for _, duration := range []int{0, 1, 7, 30} {
			w := mustWindow(t, "2020-02-10_12-00", duration, freq)
			labels := w.Labels()
			for _, key := range Select(listing, w) {
				matched := false
				for _, l := range labels {
					if strings.Contains(key, l) {
						matched = true
						break
					}
				}
				assert.True(t, matched, "key %s matches no label", key)
				if freq != "" {
					assert.Contains(t, key, freq)
				}
			}
		}
	}
}

func TestSelectIsDeterministicAndPure(t *testing.T) {
	listing := append([]string(nil), twoMinutes...)
	w := mustWindow(t, "2020-02-10_12-00", 2, "")
	first := Select(listing, w)
	second := Select(listing, w)
	assert.Equal(t, first, second)
	assert.Equal(t, twoMinutes, listing)
}

func TestLabels(t *testing.T) {
	w := mustWindow(t, "2020-02-10_12-58", 3, "")
	assert.Equal(t, []string{
		"2020_02_10__12_58_00",
		"2020_02_10__12_59_00",
		"2020_02_10__13_00_00",
	}, w.Labels())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("2020-02-10 12:00", 1, "")
	assert.Error(t, err)
	_, err = New("2020-02-10_12-00", -1, "")
	assert.Error(t, err)
}

func TestParseStartAcceptsUnpaddedFields(t *testing.T) {
	for _, s := range []string{"2020-2-1_9-5", "2020-02-01_09-05", "2020-2-01_9-05"} {
		got, err := ParseStart(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2020, 2, 1, 9, 5, 0, 0, time.UTC), got, s)
	}
	w := mustWindow(t, "2020-2-1_9-5", 1, "")
	assert.Equal(t, []string{"2020_02_01__09_05_00"}, w.Labels())

	for _, s := range []string{"2020-02-01_009-05", "2020-02-01", "2020-13-01_09-05"} {
		_, err := ParseStart(s)
		assert.Error(t, err, s)
	}
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "/2020-02-10", mustWindow(t, "2020-02-10_12-00", 1, "").Prefix())
	assert.Equal(t, "/2020-02-10/90MHz", mustWindow(t, "2020-02-10_12-00", 1, "90MHz").Prefix())
	assert.Equal(t, "", DatePrefix("", "90MHz"))
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("/2020-02-10/120_5MHz/2020_02_10__12_00_00.wav")
	require.True(t, ok)
	assert.Equal(t, Key{Date: "2020-02-10", Frequency: "120_5MHz", Name: "2020_02_10__12_00_00.wav"}, k)

	k, ok = ParseKey("2020-02-10/90MHz/x.ogg")
	require.True(t, ok)
	assert.Equal(t, "90MHz", k.Frequency)

	_, ok = ParseKey("/2020-02-10")
	assert.False(t, ok)
}
