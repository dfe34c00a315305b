// Package tagutil carries the line-oriented LRC lyrics parser and the
// small string/path/timestamp helpers shared by the scanner and the API
// layer's lyric-fetch client.
package tagutil

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Lyrics is the parsed content of a .lrc file or an embedded lyrics tag.
// Exactly one of SynchronizedLines or UnsynchronizedLines is populated,
// mirroring the "first pass decides the mode" rule: a file with at least
// one timestamp tag is synchronized end to end, everything else is plain
// text.
type Lyrics struct {
	DisplayArtist string
	DisplayAlbum  string
	DisplayTitle  string
	Language      string
	// Offset is the signed millisecond adjustment from the `[offset: ms]`
	// tag, applied by the player on top of each parsed timestamp.
	Offset time.Duration

	SynchronizedLines   map[time.Duration]string
	UnsynchronizedLines []string
}

var (
	metadataTagRe  = regexp.MustCompile(`^\[([A-Za-z]+):\s*([^\]]*)\]\s*$`)
	timestampTagRe = regexp.MustCompile(`^\s*\[(\d{1,2}(?::\d{1,2}){1,2})\.(\d{1,3})\]`)
)

type lrcSegment struct {
	timestamps []time.Duration
	lines      []string
}

// ParseLyrics parses the LRC grammar: `[key: value]` metadata tags,
// `##`-prefixed comments, and one or more leading `[mm:ss.cc]`/
// `[hh:mm:ss.cc]` timestamp tags per line. A file carrying no timestamp
// tag at all is treated as unsynchronized plain text instead.
func ParseLyrics(r io.Reader) (Lyrics, error) {
	var rawLines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rawLines = append(rawLines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return Lyrics{}, err
	}

	lyrics := Lyrics{SynchronizedLines: map[time.Duration]string{}}

	hasTimestamp := false
	for _, line := range rawLines {
		if strings.HasPrefix(line, "##") {
			continue
		}
		if timestampTagRe.MatchString(line) {
			hasTimestamp = true
			break
		}
	}

	if !hasTimestamp {
		lyrics.applyMetadataAndUnsynchronized(rawLines)
		return lyrics, nil
	}

	var segments []lrcSegment
	for _, line := range rawLines {
		if strings.HasPrefix(line, "##") {
			continue
		}
		if m := metadataTagRe.FindStringSubmatch(line); m != nil && !timestampTagRe.MatchString(line) {
			lyrics.applyMetadataTag(m[1], m[2])
			continue
		}

		rest := line
		var timestamps []time.Duration
		for {
			loc := timestampTagRe.FindStringSubmatchIndex(rest)
			if loc == nil {
				break
			}
			intPart := rest[loc[2]:loc[3]]
			fracPart := rest[loc[4]:loc[5]]
			timestamps = append(timestamps, parseLRCTimestamp(intPart, fracPart))
			rest = rest[loc[1]:]
		}

		if len(timestamps) > 0 {
			segments = append(segments, lrcSegment{timestamps: timestamps, lines: []string{rest}})
			continue
		}

		if len(segments) == 0 {
			// Preamble before the first timestamp tag: discarded.
			continue
		}
		segments[len(segments)-1].lines = append(segments[len(segments)-1].lines, line)
	}

	for i, seg := range segments {
		lines := seg.lines
		if i == len(segments)-1 {
			lines = trimTrailingBlankLines(lines)
		}
		text := strings.Join(lines, "\n")
		for _, ts := range seg.timestamps {
			lyrics.SynchronizedLines[ts] = text
		}
	}

	return lyrics, nil
}

func (l *Lyrics) applyMetadataAndUnsynchronized(rawLines []string) {
	var body []string
	for _, line := range rawLines {
		if strings.HasPrefix(line, "##") {
			continue
		}
		if m := metadataTagRe.FindStringSubmatch(line); m != nil {
			l.applyMetadataTag(m[1], m[2])
			continue
		}
		body = append(body, line)
	}
	start := 0
	for start < len(body) && strings.TrimSpace(body[start]) == "" {
		start++
	}
	l.UnsynchronizedLines = body[start:]
}

func (l *Lyrics) applyMetadataTag(key, value string) {
	switch strings.ToLower(key) {
	case "ar":
		l.DisplayArtist = value
	case "al":
		l.DisplayAlbum = value
	case "ti":
		l.DisplayTitle = value
	case "la":
		l.Language = value
	case "offset":
		if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			l.Offset = time.Duration(ms) * time.Millisecond
		}
	}
}

func trimTrailingBlankLines(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

func parseLRCTimestamp(intPart, fracPart string) time.Duration {
	segs := strings.Split(intPart, ":")
	var h, m, s int
	switch len(segs) {
	case 3:
		h, _ = strconv.Atoi(segs[0])
		m, _ = strconv.Atoi(segs[1])
		s, _ = strconv.Atoi(segs[2])
	default:
		m, _ = strconv.Atoi(segs[0])
		s, _ = strconv.Atoi(segs[1])
	}
	fracVal, _ := strconv.Atoi(fracPart)
	pow10 := 1
	for range fracPart {
		pow10 *= 10
	}
	fracMs := fracVal * 1000 / pow10

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(fracMs)*time.Millisecond
}

// FormatLRCTimestamp is the inverse of the timestamp grammar above,
// producing the canonical `mm:ss.cc` form used when writing lyrics back
// out (round-trip tested against ParseLyrics).
func FormatLRCTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := d
	minutes := int(total / time.Minute)
	total -= time.Duration(minutes) * time.Minute
	seconds := int(total / time.Second)
	total -= time.Duration(seconds) * time.Second
	centiseconds := int(total / (10 * time.Millisecond))
	return pad2(minutes) + ":" + pad2(seconds) + "." + pad2(centiseconds)
}

func pad2(v int) string {
	s := strconv.Itoa(v)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
