// Package config provides shared configuration helpers for LMS processes.
package config

import (
	"os"
	"strconv"
	"strings"
)

// DefaultDBPath is the fallback SQLite catalog path used when LMS_DB_PATH is
// not set. Override it via the LMS_DB_PATH environment variable in
// production.
const DefaultDBPath = "./data/lms.db"

// IntegrityCheck selects the startup integrity pass strength.
type IntegrityCheck string

const (
	IntegrityQuick IntegrityCheck = "quick"
	IntegrityFull IntegrityCheck = "full"
	IntegrityNone IntegrityCheck = "none"
)

// Settings is the full set of operator-editable configuration keys.
// Every field is environment-variable sourced via the Env(key, def) idiom;
// unknown env vars are ignored, missing ones take the documented default.
type Settings struct {
	DBPath string
	DBPoolSize int
	DBIntegrityCheck IntegrityCheck
	DBShowQueries bool

	ListenBrainzAPIBaseURL string
	ListenBrainzMaxSyncFeedbackCount int
	ListenBrainzSyncFeedbacksPeriodHours int

	MusicBrainzEnrichmentEnabled bool

	SkipDuplicateTrackMBID bool
	ArtistTagDelimiters []string
	ArtistsToNotSplit []string
	DefaultTagDelimiters []string
	SkipSingleReleasePlayLists bool
	AllowArtistMBIDFallback bool
	ArtistImageFallbackToRelease bool

	// SomWidth/SomHeight override the `sqrt(sampleCount/20)` SOM grid-size
	// heuristic (open question); 0 means "auto".
	SomWidth int
	SomHeight int

	MediaLibraryRoots []string

	HTTPPort string
	ServerName string // advertised via mDNS; empty means use the OS hostname
	JWTSecret string

	StoreBackend string // local | s3
	StoreRoot string
	StoreBucket string
	S3Endpoint string
	S3AccessKey string
	S3SecretKey string

	KVAddr string

	// PlayerSinkBackend selects the local player's audio sink:
	// "pulse" shells out to pacat, "null" discards audio (headless/test
	// environments), "file" writes raw PCM to PlayerSinkFilePath.
	PlayerSinkBackend string
	PlayerSinkFilePath string
	FFmpegPath string
}

// Load builds a Settings from the process environment, applying the
// documented defaults for every unset key.
func Load() Settings {
	return Settings{
		DBPath: Env("LMS_DB_PATH", DefaultDBPath),
		DBPoolSize: EnvInt("LMS_DB_POOL_SIZE", 8),
		DBIntegrityCheck: IntegrityCheck(Env("LMS_DB_INTEGRITY_CHECK", string(IntegrityQuick))),
		DBShowQueries: EnvBool("LMS_DB_SHOW_QUERIES", false),

		ListenBrainzAPIBaseURL: Env("LMS_LISTENBRAINZ_API_BASE_URL", "https://api.listenbrainz.org"),
		ListenBrainzMaxSyncFeedbackCount: EnvInt("LMS_LISTENBRAINZ_MAX_SYNC_FEEDBACK_COUNT", 1000),
		ListenBrainzSyncFeedbacksPeriodHours: EnvInt("LMS_LISTENBRAINZ_SYNC_FEEDBACKS_PERIOD_HOURS", 1),

		MusicBrainzEnrichmentEnabled: EnvBool("LMS_MUSICBRAINZ_ENRICHMENT_ENABLED", true),

		SkipDuplicateTrackMBID: EnvBool("LMS_SKIP_DUPLICATE_TRACK_MBID", false),
		ArtistTagDelimiters: EnvList("LMS_ARTIST_TAG_DELIMITERS", []string{";", "/"}),
		ArtistsToNotSplit: EnvList("LMS_ARTISTS_TO_NOT_SPLIT", nil),
		DefaultTagDelimiters: EnvList("LMS_DEFAULT_TAG_DELIMITERS", []string{";"}),
		SkipSingleReleasePlayLists: EnvBool("LMS_SKIP_SINGLE_RELEASE_PLAYLISTS", false),
		AllowArtistMBIDFallback: EnvBool("LMS_ALLOW_ARTIST_MBID_FALLBACK", true),
		ArtistImageFallbackToRelease: EnvBool("LMS_ARTIST_IMAGE_FALLBACK_TO_RELEASE", true),

		SomWidth: EnvInt("LMS_SOM_WIDTH", 0),
		SomHeight: EnvInt("LMS_SOM_HEIGHT", 0),

		MediaLibraryRoots: EnvList("LMS_MEDIA_LIBRARY_ROOTS", []string{"./music"}),

		HTTPPort: Env("LMS_HTTP_PORT", "8080"),
		ServerName: Env("LMS_SERVER_NAME", ""),
		JWTSecret: Env("LMS_JWT_SECRET", "dev-secret-change-in-prod"),

		StoreBackend: Env("LMS_STORE_BACKEND", "local"),
		StoreRoot: Env("LMS_STORE_ROOT", "./data/images"),
		StoreBucket: Env("LMS_STORE_BUCKET", "lms-images"),
		S3Endpoint: Env("LMS_S3_ENDPOINT", "http://localhost:9000"),
		S3AccessKey: Env("LMS_S3_ACCESS_KEY", "lms"),
		S3SecretKey: Env("LMS_S3_SECRET_KEY", "lmssecret"),

		KVAddr: Env("LMS_KV_ADDR", "localhost:6379"),

		PlayerSinkBackend: Env("LMS_PLAYER_SINK_BACKEND", "pulse"),
		PlayerSinkFilePath: Env("LMS_PLAYER_SINK_FILE_PATH", "./data/player-output.pcm"),
		FFmpegPath: Env("LMS_FFMPEG_PATH", "ffmpeg"),
	}
}

// Env returns the value of the environment variable key, or def if unset.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvBool parses the environment variable key as a bool, or returns def.
func EnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvInt parses the environment variable key as an int, or returns def.
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// EnvList splits a comma-separated environment variable into a slice,
// dropping empty tokens, or returns def when unset.
func EnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
