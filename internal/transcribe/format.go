package transcribe

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// clock renders an elapsed time as MM:SS, or H:MM:SS past one hour, with a
// .mmm suffix when the value carries sub-second precision.
func clock(seconds float64) string {
	d := time.Duration(math.Round(seconds*1000)) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	ms := int(d/time.Millisecond) % 1000

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%d:%02d:%02d", h, m, s)
	} else {
		fmt.Fprintf(&b, "%02d:%02d", m, s)
	}
	if ms > 0 {
		fmt.Fprintf(&b, ".%03d", ms)
	}
	return b.String()
}

// formatTurns walks words grouped by consecutive speaker and emits the
// display transcript. A speaker change opens a new paragraph headed by a
// SPEAKER_<id> marker; words with a zero or unset speaker never trigger a
// boundary and ride along in the current turn. With wordTime set, each turn
// header carries the turn's start clock. Without speakerLabels no markers
// are emitted and the output is the plain word join.
func formatTurns(words []Word, speakerLabels, wordTime bool) string {
	var b strings.Builder
	current := ""
	for i, w := range words {
		switch {
		case speakerLabels && w.Speaker != "" && w.Speaker != "0" && w.Speaker != current:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("SPEAKER_" + w.Speaker)
			if wordTime {
				b.WriteString(" [" + clock(w.Start) + "]")
			}
			b.WriteString(": ")
			current = w.Speaker
		case i > 0:
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
	}
	return b.String()
}
