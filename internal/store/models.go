package store

import (
	"fmt"

	"lms/internal/dbtypes"
)

// Row types mirror entity list: plain structs, JSON tags for API
// re-use, *Params request structs per write operation, retargeted from Postgres
// UUID rows onto the SQLite schema in migrations.go and dbtypes' int64 IDs.

type MediaLibrary struct {
	ID dbtypes.MediaLibraryID `json:"id"`
	Name string `json:"name"`
	RootPath string `json:"root_path"`
}

type Directory struct {
	ID dbtypes.DirectoryID `json:"id"`
	Path string `json:"path"`
	ParentID *dbtypes.DirectoryID `json:"parent_id,omitempty"`
	MediaLibraryID dbtypes.MediaLibraryID `json:"media_library_id"`
}

type Image struct {
	ID dbtypes.ImageID `json:"id"`
	Path string `json:"path"`
	FileSize int64 `json:"file_size"`
	MtimeUnix int64 `json:"mtime_unix"`
}

type Label struct {
	ID dbtypes.LabelID `json:"id"`
	Name string `json:"name"`
}

type ReleaseType struct {
	ID dbtypes.ReleaseTypeID `json:"id"`
	Name string `json:"name"`
}

type ClusterType struct {
	ID dbtypes.ClusterTypeID `json:"id"`
	Name string `json:"name"`
}

type Cluster struct {
	ID dbtypes.ClusterID `json:"id"`
	ClusterTypeID dbtypes.ClusterTypeID `json:"cluster_type_id"`
	Name string `json:"name"`
}

type Artist struct {
	ID dbtypes.ArtistID `json:"id"`
	Name string `json:"name"`
	SortName string `json:"sort_name"`
	MBID *string `json:"mbid,omitempty"`
	Biography *string `json:"biography,omitempty"`
	ImageID *dbtypes.ImageID `json:"image_id,omitempty"`
}

type Release struct {
	ID dbtypes.ReleaseID `json:"id"`
	Name string `json:"name"`
	SortName string `json:"sort_name"`
	MBID *string `json:"mbid,omitempty"`
	Year *int `json:"year,omitempty"`
	OriginalYear *int `json:"original_year,omitempty"`
	TotalDisc *int `json:"total_disc,omitempty"`
	CoverImageID *dbtypes.ImageID `json:"cover_image_id,omitempty"`
}

// TrackArtistLinkType enumerates the role a Track-Artist join carries.
type TrackArtistLinkType string

const (
	LinkArtist TrackArtistLinkType = "artist"
	LinkAlbumArtist TrackArtistLinkType = "albumartist"
	LinkComposer TrackArtistLinkType = "composer"
	LinkConductor TrackArtistLinkType = "conductor"
	LinkRemixer TrackArtistLinkType = "remixer"
)

type Track struct {
	ID dbtypes.TrackID `json:"id"`
	Path string `json:"path"`
	Title string `json:"title"`
	FileSize int64 `json:"file_size"`
	MtimeUnix int64 `json:"mtime_unix"`
	ScanTimeUnix int64 `json:"scan_time_unix"`
	ScanVersion int `json:"scan_version"`
	DurationMs int64 `json:"duration_ms"`
	TrackNumber *int `json:"track_number,omitempty"`
	TrackTotal *int `json:"track_total,omitempty"`
	DiscNumber *int `json:"disc_number,omitempty"`
	DiscTotal *int `json:"disc_total,omitempty"`
	ReleaseDate *string `json:"release_date,omitempty"`
	OriginalReleaseDate *string `json:"original_release_date,omitempty"`
	MBRecordingID *string `json:"mb_recording_id,omitempty"`
	MBReleaseID *string `json:"mb_release_id,omitempty"`
	MBTrackID *string `json:"mb_track_id,omitempty"`
	ReplayGainTrack *float64 `json:"replaygain_track,omitempty"`
	ReplayGainRelease *float64 `json:"replaygain_release,omitempty"`
	Copyright *string `json:"copyright,omitempty"`
	CopyrightURL *string `json:"copyright_url,omitempty"`
	BitDepth *int `json:"bit_depth,omitempty"`
	Channels *int `json:"channels,omitempty"`
	SampleRate *int `json:"sample_rate,omitempty"`
	ReleaseID *dbtypes.ReleaseID `json:"release_id,omitempty"`
	MediaLibraryID dbtypes.MediaLibraryID `json:"media_library_id"`
	DirectoryID dbtypes.DirectoryID `json:"directory_id"`
}

type TrackLyrics struct {
	ID int64 `json:"id"`
	TrackID dbtypes.TrackID `json:"track_id"`
	ExternalPath *string `json:"external_path,omitempty"`
	Synchronized bool `json:"synchronized"`
	Language *string `json:"language,omitempty"`
	DisplayArtist *string `json:"display_artist,omitempty"`
	DisplayAlbum *string `json:"display_album,omitempty"`
	DisplayTitle *string `json:"display_title,omitempty"`
	OffsetMs int `json:"offset_ms"`
	Content string `json:"content"` // JSON-encoded []LyricLine or []string
}

type PlayListFile struct {
	ID int64 `json:"id"`
	Path string `json:"path"`
	FileSize int64 `json:"file_size"`
	MtimeUnix int64 `json:"mtime_unix"`
	Content string `json:"content"` // JSON-encoded []string of referenced absolute paths
}

type UserType string

const (
	UserAdmin UserType = "admin"
	UserRegular UserType = "regular"
	UserDemo UserType = "demo"
)

type User struct {
	ID dbtypes.UserID `json:"id"`
	Login string `json:"login"`
	Type UserType `json:"type"`
	PasswordHash *string `json:"-"`
	PasswordSalt *string `json:"-"`
	LastLoginUnix *int64 `json:"last_login_unix,omitempty"`
}

type TrackListType string

const (
	TrackListPlaylist TrackListType = "playlist"
	TrackListInternal TrackListType = "internal"
	TrackListPlayedTracks TrackListType = "played_tracks"
	TrackListFavorites TrackListType = "favorites"
)

type TrackListVisibility string

const (
	VisibilityPrivate TrackListVisibility = "private"
	VisibilityPublic TrackListVisibility = "public"
)

type TrackList struct {
	ID dbtypes.TrackListID `json:"id"`
	OwnerUserID *dbtypes.UserID `json:"owner_user_id,omitempty"`
	Type TrackListType `json:"type"`
	Visibility TrackListVisibility `json:"visibility"`
	Name string `json:"name"`
	CreatedUnix int64 `json:"created_unix"`
	LastModifiedUnix int64 `json:"last_modified_unix"`
}

type TrackListEntry struct {
	ID int64 `json:"id"`
	TrackListID dbtypes.TrackListID `json:"tracklist_id"`
	TrackID dbtypes.TrackID `json:"track_id"`
	Position int `json:"position"`
	EntryTimestampUnix *int64 `json:"entry_timestamp_unix,omitempty"`
}

type SyncState string

const (
	SyncUnsynchronized SyncState = "unsynchronized"
	SyncPendingAdd SyncState = "pending_add"
	SyncPendingRemove SyncState = "pending_remove"
	SyncSynchronized SyncState = "synchronized"
)

type StarredArtist struct {
	UserID dbtypes.UserID `json:"user_id"`
	ArtistID dbtypes.ArtistID `json:"artist_id"`
	Backend string `json:"backend"`
	SyncState SyncState `json:"sync_state"`
	StarredAtUnix int64 `json:"starred_at_unix"`
}

type StarredRelease struct {
	UserID dbtypes.UserID `json:"user_id"`
	ReleaseID dbtypes.ReleaseID `json:"release_id"`
	Backend string `json:"backend"`
	SyncState SyncState `json:"sync_state"`
	StarredAtUnix int64 `json:"starred_at_unix"`
}

type StarredTrack struct {
	UserID dbtypes.UserID `json:"user_id"`
	TrackID dbtypes.TrackID `json:"track_id"`
	Backend string `json:"backend"`
	SyncState SyncState `json:"sync_state"`
	StarredAtUnix int64 `json:"starred_at_unix"`
}

type AuthToken struct {
	ID dbtypes.AuthTokenID `json:"id"`
	UserID dbtypes.UserID `json:"user_id"`
	Domain string `json:"domain"`
	Token string `json:"-"`
	ExpiryUnix *int64 `json:"expiry_unix,omitempty"`
	MaxUseCount *int `json:"max_use_count,omitempty"`
	UseCount int `json:"use_count"`
	LastUsedUnix *int64 `json:"last_used_unix,omitempty"`
}

type ScanSettings struct {
	AudioScanVersion int `json:"audio_scan_version"`
	ArtistInfoScanVersion int `json:"artist_info_scan_version"`
	LastScanUnix *int64 `json:"last_scan_unix,omitempty"`
}

// --- Range / FindParameters support ---

// Range is the {offset, size} pagination primitive used by every finder.
type Range struct {
	Offset int
	Size int
}

// RangeResults is the generic pagination envelope: MoreResults is true iff
// the underlying data has at least one more row after Offset+Size.
type RangeResults[T any] struct {
	Range Range
	Results []T
	MoreResults bool
}

// SortMethod enumerates the available track/release/artist sort strategies.
type SortMethod string

const (
	SortRandom SortMethod = "random"
	SortName SortMethod = "name"
	SortLastModified SortMethod = "last_modified_desc"
	SortStarredDateDesc SortMethod = "starred_date_desc"
	SortPlayCountDesc SortMethod = "play_count_desc"
)

// --- write-path Params structs, one per write operation ---

type UpsertMediaLibraryParams struct {
	Name string
	RootPath string
}

type UpsertArtistParams struct {
	Name string
	SortName string
	MBID *string
	Biography *string
}

type UpsertReleaseParams struct {
	Name string
	SortName string
	MBID *string
	Year *int
	OriginalYear *int
	TotalDisc *int
}

type UpsertTrackParams struct {
	Path string
	FileSize int64
	MtimeUnix int64
	ScanVersion int
	DurationMs int64
	TrackNumber *int
	TrackTotal *int
	DiscNumber *int
	DiscTotal *int
	ReleaseDate *string
	OriginalReleaseDate *string
	MBRecordingID *string
	MBReleaseID *string
	MBTrackID *string
	ReplayGainTrack *float64
	ReplayGainRelease *float64
	Copyright *string
	CopyrightURL *string
	BitDepth *int
	Channels *int
	SampleRate *int
	ReleaseID *dbtypes.ReleaseID
	MediaLibraryID dbtypes.MediaLibraryID
	DirectoryID dbtypes.DirectoryID
	Title string
	ArtistNames []string
	AlbumArtistNames []string
	ClusterNames map[string][]string // cluster type name -> values
}

type CreateUserParams struct {
	Login string
	Type UserType
	PasswordHash string
	PasswordSalt string
}

type CreateTrackListParams struct {
	OwnerUserID *dbtypes.UserID
	Type TrackListType
	Visibility TrackListVisibility
	Name string
}

type IssueAuthTokenParams struct {
	UserID dbtypes.UserID
	Domain string
	Token string
	ExpiryUnix *int64
	MaxUseCount *int
}

// FindFilters aggregates the narrowing criteria common to every finder
//: cluster intersection, release-type scoping, free-text
// keyword search and user-scoping for starred-only views. LabelIDs is
// carried on the struct but no finder filters on it.
type FindFilters struct {
	ClusterIDs []dbtypes.ClusterID
	ReleaseTypeIDs []dbtypes.ReleaseTypeID
	LabelIDs []dbtypes.LabelID
	MediaLibraryID dbtypes.MediaLibraryID
	Keywords []string
	StarredByUser dbtypes.UserID
	SortMethod SortMethod
	// RandomSeed pins SortRandom to a stable per-session permutation
	// (internal/entity.RandomSession) instead of reshuffling every page.
	RandomSeed *int64
}

type FindParameters struct {
	Filters FindFilters
	Range Range
}

// orderByExpr whitelists the ORDER BY expression reachable from a
// SortMethod, never interpolating caller-provided strings. When the
// method is SortRandom and a RandomSeed is pinned, returns the stable
// linear-congruential permutation from internal/entity.RandomSession
// instead of a fresh RANDOM roll per query.
func orderByExpr(m SortMethod, seed *int64, idCol, nameExpr string) (string, []any) {
	return orderByExprFull(m, seed, idCol, idCol+" DESC", nameExpr)
}

// orderByExprFull is orderByExpr with an explicit lastModifiedExpr, for
// entities (like Track) whose "most recently touched" ordering isn't
// simply their surrogate id. Only SortRandom and SortLastModified have
// their own expression; every other method, SortStarredDateDesc and
// SortPlayCountDesc included, orders by nameExpr.
func orderByExprFull(m SortMethod, seed *int64, idCol, lastModifiedExpr, nameExpr string) (string, []any) {
	switch m {
	case SortRandom:
		if seed != nil {
			return fmt.Sprintf("((%s * 1103515245 + ?) %% 2147483647)", idCol), []any{*seed}
		}
		return "RANDOM()", nil
	case SortLastModified:
		return lastModifiedExpr, nil
	default:
		return nameExpr, nil
	}
}
