// Package dbtypes defines strongly-typed surrogate IDs for catalog entities.
// Each wraps the same underlying int64 storage but the Go type system keeps
// them from being interchanged across entity boundaries.
package dbtypes

import "strconv"

// Invalid is the sentinel value for every ID type below (zero value).
const Invalid = 0

// TrackID identifies a Track row.
type TrackID int64

// IsValid reports whether the id refers to a real row.
func (id TrackID) IsValid() bool { return id != Invalid }

// String implements fmt.Stringer.
func (id TrackID) String() string { return strconv.FormatInt(int64(id), 10) }

// ReleaseID identifies a Release row.
type ReleaseID int64

func (id ReleaseID) IsValid() bool  { return id != Invalid }
func (id ReleaseID) String() string { return strconv.FormatInt(int64(id), 10) }

// ArtistID identifies an Artist row.
type ArtistID int64

func (id ArtistID) IsValid() bool  { return id != Invalid }
func (id ArtistID) String() string { return strconv.FormatInt(int64(id), 10) }

// ClusterID identifies a Cluster row.
type ClusterID int64

func (id ClusterID) IsValid() bool  { return id != Invalid }
func (id ClusterID) String() string { return strconv.FormatInt(int64(id), 10) }

// ClusterTypeID identifies a ClusterType row.
type ClusterTypeID int64

func (id ClusterTypeID) IsValid() bool  { return id != Invalid }
func (id ClusterTypeID) String() string { return strconv.FormatInt(int64(id), 10) }

// LabelID identifies a Label row.
type LabelID int64

func (id LabelID) IsValid() bool  { return id != Invalid }
func (id LabelID) String() string { return strconv.FormatInt(int64(id), 10) }

// ReleaseTypeID identifies a ReleaseType row.
type ReleaseTypeID int64

func (id ReleaseTypeID) IsValid() bool  { return id != Invalid }
func (id ReleaseTypeID) String() string { return strconv.FormatInt(int64(id), 10) }

// MediaLibraryID identifies a MediaLibrary row.
type MediaLibraryID int64

func (id MediaLibraryID) IsValid() bool  { return id != Invalid }
func (id MediaLibraryID) String() string { return strconv.FormatInt(int64(id), 10) }

// DirectoryID identifies a Directory row.
type DirectoryID int64

func (id DirectoryID) IsValid() bool  { return id != Invalid }
func (id DirectoryID) String() string { return strconv.FormatInt(int64(id), 10) }

// ImageID identifies an Image row.
type ImageID int64

func (id ImageID) IsValid() bool  { return id != Invalid }
func (id ImageID) String() string { return strconv.FormatInt(int64(id), 10) }

// TrackListID identifies a TrackList row (playlist, played-tracks, favorites, ...).
type TrackListID int64

func (id TrackListID) IsValid() bool  { return id != Invalid }
func (id TrackListID) String() string { return strconv.FormatInt(int64(id), 10) }

// UserID identifies a User row.
type UserID int64

func (id UserID) IsValid() bool  { return id != Invalid }
func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// AuthTokenID identifies an AuthToken row.
type AuthTokenID int64

func (id AuthTokenID) IsValid() bool  { return id != Invalid }
func (id AuthTokenID) String() string { return strconv.FormatInt(int64(id), 10) }
