package scanner

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"lms/internal/config"
	"lms/internal/tagutil"
)

// parsedFile is everything scanFiles needs to upsert one audio file,
// produced by the parse worker pool and consumed by the single writer
// goroutine: a pure parse stage (this struct) and a store-writing stage
// (scanfiles.go) because store writes must serialize on the exclusive lock
// while tag parsing benefits from running on every core.
type parsedFile struct {
	path string
	fi os.FileInfo
	err error

	title string
	albumTitle string
	artistNames []string
	albumArtistNames []string
	genres []string

	trackNumber, trackTotal *int
	discNumber, discTotal *int
	releaseYear *int

	bitDepth, sampleRate *int
	durationMs int64

	picture []byte
}

// parseFile reads path's tags and, for FLAC files, its STREAMINFO block.
// Any error here is per-file and recoverable: the caller records it under
// stats.Errors and moves on, it never aborts the scan.
func parseFile(path string, fi os.FileInfo, cfg config.Settings) parsedFile {
	pf := parsedFile{path: path, fi: fi}

	f, err := os.Open(path)
	if err != nil {
		pf.err = err
		return pf
	}
	defer f.Close

	m, err := tag.ReadFrom(f)
	if err != nil {
		pf.err = fmt.Errorf("read tags: %w", err)
		return pf
	}

	albumArtist := tagutil.Coalesce(m.AlbumArtist, m.Artist, "Unknown Artist")
	trackArtist := tagutil.Coalesce(m.Artist, albumArtist)

	pf.albumArtistNames = tagutil.SplitArtists(albumArtist, cfg.ArtistTagDelimiters, cfg.ArtistsToNotSplit)
	pf.artistNames = tagutil.SplitArtists(trackArtist, cfg.ArtistTagDelimiters, cfg.ArtistsToNotSplit)

	pf.title = tagutil.Coalesce(m.Title, tagutil.Stem(path))
	pf.albumTitle = tagutil.Coalesce(m.Album, "Unknown Album")

	if g := m.Genre; g != "" {
		pf.genres = tagutil.SplitArtists(g, cfg.DefaultTagDelimiters, nil)
	}

	if n, total := m.Track; n != 0 {
		v := n
		pf.trackNumber = &v
		if total != 0 {
			vt := total
			pf.trackTotal = &vt
		}
	}
	if n, total := m.Disc; n != 0 {
		v := n
		pf.discNumber = &v
		if total != 0 {
			vt := total
			pf.discTotal = &vt
		}
	}
	if y := m.Year; y > 0 {
		v := y
		pf.releaseYear = &v
	}

	if pic := m.Picture; pic != nil && len(pic.Data) > 0 {
		pf.picture = pic.Data
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	bitDepth, sampleRate, durationMs := readFLACInfo(f, ext)
	if bitDepth > 0 {
		pf.bitDepth = &bitDepth
	}
	if sampleRate > 0 {
		pf.sampleRate = &sampleRate
	}
	pf.durationMs = durationMs

	return pf
}

// readFLACInfo reads the FLAC STREAMINFO block for bit depth, sample rate
// and duration using the already-open file f (same bit layout, same
// 42-byte header check as the format's spec); returns zeros for non-FLAC
// files or unparseable headers.
func readFLACInfo(f *os.File, ext string) (bitDepth, sampleRate int, durationMs int64) {
	if ext != "flac" {
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return
	}
	buf := make([]byte, 42)
	if _, err := io.ReadFull(f, buf); err != nil {
		return
	}
	if string(buf[0:4]) != "fLaC" || buf[4]&0x7F != 0 {
		return
	}
	if binary.BigEndian.Uint32([]byte{0, buf[5], buf[6], buf[7]}) != 34 {
		return
	}
	si := buf[8:]
	sampleRate = int(uint32(si[10])<<12 | uint32(si[11])<<4 | uint32(si[12])>>4)
	bitDepth = int((si[12]&0x01)<<4|si[13]>>4) + 1
	totalSamples := int64(si[13]&0x0F)<<32 |
		int64(si[14])<<24 | int64(si[15])<<16 |
		int64(si[16])<<8 | int64(si[17])
	if sampleRate > 0 && totalSamples > 0 {
		durationMs = totalSamples * 1000 / int64(sampleRate)
	}
	return
}
