package objstore

import (
	"fmt"

	"lms/internal/dbtypes"
)

// CoverArtKey returns the object key under which an image row's bytes are
// stored (release covers, artist images and embedded track art alike),
// keyed on the image row's ID rather than the owning entity's ID so that a
// release whose cover changes (re-scan finds different artwork) gets a
// fresh key instead of overwriting the old blob in place.
func CoverArtKey(imageID dbtypes.ImageID) string {
	return fmt.Sprintf("covers/%s.jpg", imageID)
}

// ArtistImageKey returns an "artists/"-prefixed object key for an image
// ID. The scanner and the stream service store and serve artist images
// under CoverArtKey, not under this key.
func ArtistImageKey(imageID dbtypes.ImageID) string {
	return fmt.Sprintf("artists/%s.jpg", imageID)
}

// AudioBlobKey returns the object key under which a track's transcoded (or
// passthrough) audio bytes are cached, namespaced by requested format so
// the same track can have multiple cached renditions (e.g. "flac" original
// plus an "mp3" transcode for a client that can't play lossless).
func AudioBlobKey(trackID dbtypes.TrackID, format string) string {
	return fmt.Sprintf("audio/%s/%s", trackID, format)
}
