package tagutil

import (
	"strings"
	"testing"
	"time"
)

func TestParseLyricsSynchronized(t *testing.T) {
	in := "[id: dqsxdkbu]\n[ar: Lady Gaga]\n[al: Lady Gaga]\n[ti: Die With A Smile]\n[la: eng]\n[length: 04:12]\n[offset: -34]\n[00:03.30]Ooh, ooh\n[00:06.75]\n[00:09.16]I, I just woke up from a dream"

	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if l.DisplayArtist != "Lady Gaga" || l.DisplayAlbum != "Lady Gaga" || l.DisplayTitle != "Die With A Smile" {
		t.Fatalf("unexpected tags: %+v", l)
	}
	if l.Language != "eng" {
		t.Fatalf("language = %q", l.Language)
	}
	if l.Offset != -34*time.Millisecond {
		t.Fatalf("offset = %v", l.Offset)
	}
	if len(l.UnsynchronizedLines) != 0 {
		t.Fatalf("unsynchronized lines should be empty")
	}
	want := map[time.Duration]string{
		3*time.Second + 300*time.Millisecond: "Ooh, ooh",
		6*time.Second + 750*time.Millisecond: "",
		9*time.Second + 160*time.Millisecond: "I, I just woke up from a dream",
	}
	if len(l.SynchronizedLines) != len(want) {
		t.Fatalf("got %d synchronized lines, want %d: %+v", len(l.SynchronizedLines), len(want), l.SynchronizedLines)
	}
	for ts, text := range want {
		if got := l.SynchronizedLines[ts]; got != text {
			t.Errorf("line at %v = %q, want %q", ts, got, text)
		}
	}
}

func TestParseLyricsTagInMiddle(t *testing.T) {
	in := "[00:03.30]Ooh, ooh\n[id: dqsxdkbu]\n[00:09.16]I, I just woke up from a dream"
	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.SynchronizedLines) != 2 {
		t.Fatalf("got %d lines", len(l.SynchronizedLines))
	}
}

func TestParseLyricsSkipLeadingUnsynchronized(t *testing.T) {
	in := "\nSome unsynchronized lyrics\n[00:03.30]Ooh, ooh"
	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.UnsynchronizedLines) != 0 {
		t.Fatalf("expected no unsynchronized lines, got %v", l.UnsynchronizedLines)
	}
	if len(l.SynchronizedLines) != 1 {
		t.Fatalf("expected exactly one synchronized line, got %d", len(l.SynchronizedLines))
	}
}

func TestParseLyricsSkipComments(t *testing.T) {
	in := "###\n[00:03.30]Ooh, ooh\n## just dance\n[00:09.16]I, I just woke up from a dream\n##end"
	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.SynchronizedLines) != 2 {
		t.Fatalf("got %d lines", len(l.SynchronizedLines))
	}
}

func TestParseLyricsTimestampFormats(t *testing.T) {
	in := "[00:03.30]First line\n[00:01.301]in milliseconds\n[0:02.301]leading with only one digit\n" +
		"[61:01.30]more than 60 minutes\n[02:01:01.30]With hours\n[3:01:01.30]With hours with only one digit"
	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.SynchronizedLines) != 6 {
		t.Fatalf("got %d lines: %+v", len(l.SynchronizedLines), l.SynchronizedLines)
	}
	want := []time.Duration{
		3*time.Second + 300*time.Millisecond,
		1*time.Second + 301*time.Millisecond,
		2*time.Second + 301*time.Millisecond,
		61*time.Minute + 1*time.Second + 300*time.Millisecond,
		2*time.Hour + 1*time.Minute + 1*time.Second + 300*time.Millisecond,
		3*time.Hour + 1*time.Minute + 1*time.Second + 300*time.Millisecond,
	}
	for _, ts := range want {
		if _, ok := l.SynchronizedLines[ts]; !ok {
			t.Errorf("missing timestamp %v", ts)
		}
	}
}

func TestParseLyricsKeepBlankLinesExceptEOF(t *testing.T) {
	in := "[00:03.30]Ooh, ooh\n\n\n[00:06.75]Foo\n \n"
	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if got := l.SynchronizedLines[3*time.Second+300*time.Millisecond]; got != "Ooh, ooh\n\n" {
		t.Errorf("first line = %q", got)
	}
	if got := l.SynchronizedLines[6*time.Second+750*time.Millisecond]; got != "Foo" {
		t.Errorf("last line = %q", got)
	}
}

func TestParseLyricsMultiTimestampsMultilines(t *testing.T) {
	in := "[00:03.30][00:09.16]Ooh, ooh\nSecond line\n Third line\n\nFifth line after an empty one...\n[00:06.75]I, I just woke up from a dream\nCool"
	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want1 := "Ooh, ooh\nSecond line\n Third line\n\nFifth line after an empty one..."
	if got := l.SynchronizedLines[3*time.Second+300*time.Millisecond]; got != want1 {
		t.Errorf("first group = %q", got)
	}
	if got := l.SynchronizedLines[9*time.Second+160*time.Millisecond]; got != want1 {
		t.Errorf("duplicated timestamp group = %q", got)
	}
	if got := l.SynchronizedLines[6*time.Second+750*time.Millisecond]; got != "I, I just woke up from a dream\nCool" {
		t.Errorf("second group = %q", got)
	}
}

func TestParseLyricsUnsynchronized(t *testing.T) {
	in := "[id: dqsxdkbu]\n[ar: Lady Gaga]\n[al: Lady Gaga]\n[ti: Die With A Smile]\n[length: 04:12]\n[offset: -34]\nOoh, ooh\n\n\nI, I just woke up from a dream\n\n"
	l, err := ParseLyrics(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if l.DisplayArtist != "Lady Gaga" || l.Offset != -34*time.Millisecond {
		t.Fatalf("unexpected tags: %+v", l)
	}
	want := []string{"Ooh, ooh", "", "", "I, I just woke up from a dream", ""}
	if len(l.UnsynchronizedLines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(l.UnsynchronizedLines), len(want), l.UnsynchronizedLines)
	}
	for i, w := range want {
		if l.UnsynchronizedLines[i] != w {
			t.Errorf("line %d = %q, want %q", i, l.UnsynchronizedLines[i], w)
		}
	}
}

func TestFormatLRCTimestampRoundTrip(t *testing.T) {
	d := 61*time.Minute + 1*time.Second + 300*time.Millisecond
	formatted := FormatLRCTimestamp(d % time.Hour)
	if formatted != "01:01.30" {
		t.Fatalf("formatted = %q", formatted)
	}
	l, err := ParseLyrics(strings.NewReader("[" + formatted + "]line"))
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := l.SynchronizedLines[d%time.Hour]; !ok || got != "line" {
		t.Fatalf("parsed %q back to %v, want %v", formatted, l.SynchronizedLines, d%time.Hour)
	}
}

func TestSplitArtists(t *testing.T) {
	got := SplitArtists("Earth, Wind & Fire", []string{";", "&"}, []string{"Earth, Wind & Fire"})
	if len(got) != 1 || got[0] != "Earth, Wind & Fire" {
		t.Fatalf("exception not respected: %v", got)
	}
	got = SplitArtists("Artist A; Artist B", []string{";"}, nil)
	if len(got) != 2 || got[0] != "Artist A" || got[1] != "Artist B" {
		t.Fatalf("split failed: %v", got)
	}
}
