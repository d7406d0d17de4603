package transcribe

import (
	"regexp"
	"strings"
	"testing"
)

func TestClock(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{5, "00:05"},
		{65, "01:05"},
		{5.25, "00:05.250"},
		{754.5, "12:34.500"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{3725.042, "1:02:05.042"},
	}
	for _, c := range cases {
		if got := clock(c.seconds); got != c.want {
			t.Errorf("clock(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestFormatTurns_SpeakerSequence(t *testing.T) {
	// Speakers 1,1,2,2,1 must yield exactly three markers, in order 1,2,1.
	words := []Word{
		{Text: "hi", Start: 0.0, End: 0.4, Speaker: "1"},
		{Text: "there", Start: 0.4, End: 0.8, Speaker: "1"},
		{Text: "hello", Start: 1.0, End: 1.4, Speaker: "2"},
		{Text: "friend", Start: 1.4, End: 1.9, Speaker: "2"},
		{Text: "bye", Start: 2.0, End: 2.3, Speaker: "1"},
	}

	got := formatTurns(words, true, false)
	want := "SPEAKER_1: hi there\n\nSPEAKER_2: hello friend\n\nSPEAKER_1: bye"
	if got != want {
		t.Errorf("formatTurns = %q, want %q", got, want)
	}
	if n := strings.Count(got, "SPEAKER_"); n != 3 {
		t.Errorf("marker count = %d, want 3", n)
	}
}

func TestFormatTurns_UnsetSpeakerNeverOpensTurn(t *testing.T) {
	words := []Word{
		{Text: "one", Speaker: "1"},
		{Text: "two", Speaker: ""},
		{Text: "three", Speaker: "0"},
		{Text: "four", Speaker: "1"},
	}

	got := formatTurns(words, true, false)
	want := "SPEAKER_1: one two three four"
	if got != want {
		t.Errorf("formatTurns = %q, want %q", got, want)
	}
}

func TestFormatTurns_WordTimeStampsTurnStarts(t *testing.T) {
	words := []Word{
		{Text: "early", Start: 2.5, End: 3.0, Speaker: "1"},
		{Text: "words", Start: 3.0, End: 3.4, Speaker: "1"},
		{Text: "late", Start: 3725.0, End: 3726.0, Speaker: "2"},
	}

	got := formatTurns(words, true, true)
	want := "SPEAKER_1 [00:02.500]: early words\n\nSPEAKER_2 [1:02:05]: late"
	if got != want {
		t.Errorf("formatTurns = %q, want %q", got, want)
	}
}

func TestFormatTurns_NoLabelsMeansPlainJoin(t *testing.T) {
	words := []Word{
		{Text: "plain", Start: 0, Speaker: "1"},
		{Text: "join", Start: 1, Speaker: "2"},
	}

	// Without speaker labels no markers appear, even with word_time on.
	if got := formatTurns(words, false, true); got != "plain join" {
		t.Errorf("formatTurns = %q, want %q", got, "plain join")
	}
}

var markerPattern = regexp.MustCompile(`SPEAKER_\S+( \[[^\]]+\])?: `)

func TestFormatTurns_StripMarkersRecoversRawJoin(t *testing.T) {
	words := []Word{
		{Text: "alpha", Start: 0.0, Speaker: "1"},
		{Text: "beta", Start: 0.5, Speaker: "1"},
		{Text: "gamma", Start: 1.0, Speaker: "2"},
		{Text: "delta", Start: 1.5, Speaker: ""},
		{Text: "epsilon", Start: 2.0, Speaker: "3"},
	}

	formatted := formatTurns(words, true, true)
	stripped := markerPattern.ReplaceAllString(formatted, "")
	stripped = strings.ReplaceAll(stripped, "\n\n", " ")

	want := "alpha beta gamma delta epsilon"
	if stripped != want {
		t.Errorf("stripped = %q, want %q", stripped, want)
	}
}
