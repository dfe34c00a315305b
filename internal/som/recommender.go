package som

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"lms/internal/dbtypes"
	"lms/internal/store"
)

// Recommender plugs a trained Network onto catalog entities, exposing
// findSimilarTracks, findSimilarTracksFromTrackList, getSimilarReleases and
// getSimilarArtists equivalents. A Recommender is rebuilt wholesale by
// Retrain at the end of every scan (ReloadSimilarityEngine) and is safe for
// concurrent read access once built; Retrain itself must not run
// concurrently with reads.
type Recommender struct {
	network *Network

	trackPosition map[dbtypes.TrackID]Position
	cellTracks map[Position][]dbtypes.TrackID

	// releaseCells/artistCells record, per release/artist, how many of its
	// constituent tracks classified to each cell — the "aggregate the
	// cells of constituent tracks" step similar releases/artists are
	// derived from instead of a separate SOM classification.
	releaseCells map[dbtypes.ReleaseID]map[Position]int
	artistCells map[dbtypes.ArtistID]map[store.TrackArtistLinkType]map[Position]int

	artistTrackCount map[dbtypes.ArtistID]int
	artistSortName map[dbtypes.ArtistID]string
	releaseSortName map[dbtypes.ReleaseID]string
}

// New returns an empty Recommender; SimilarTracks/SimilarReleases/
// SimilarArtists return nothing until Retrain succeeds at least once.
func New *Recommender {
	return &Recommender{}
}

// GridSize applies the auto-sizing heuristic floor(sqrt(sampleCount/20)),
// clamped to at least 1x1, used when config carries no explicit
// SomWidth/SomHeight override.
func GridSize(sampleCount int) (width, height int) {
	n := int(math.Sqrt(float64(sampleCount) / 20))
	if n < 1 {
		n = 1
	}
	return n, n
}

// trainIterations is the fixed number of competitive-learning passes
// Retrain runs; the catalog's cluster-membership vectors converge well
// before this under EuclidianSquareDistance.
const trainIterations = 20

var artistRoles = []store.TrackArtistLinkType{
	store.LinkArtist, store.LinkAlbumArtist, store.LinkComposer, store.LinkConductor, store.LinkRemixer,
}

// Retrain rebuilds the map from scratch against the current catalog: it
// loads every track/cluster, track/release and track/artist association,
// builds one input vector per track (one dimension per distinct cluster),
// trains a width x height Network, and classifies every track onto the
// trained grid, then aggregates release/artist cell membership from their
// constituent tracks. width/height of 0 requests the GridSize
// auto-heuristic. seed makes the run reproducible for tests; production
// callers pass a value derived from the scan's completion time.
func (r *Recommender) Retrain(ctx context.Context, tx *store.Tx, width, height int, seed int64) error {
	pairs, err := store.AllTrackClusterPairs(ctx, tx)
	if err != nil {
		return err
	}
	releaseOf, err := store.AllTrackReleaseIDs(ctx, tx)
	if err != nil {
		return err
	}
	artistsByRole := make(map[store.TrackArtistLinkType]map[dbtypes.TrackID][]dbtypes.ArtistID, len(artistRoles))
	for _, role := range artistRoles {
		m, err := store.AllTrackArtistIDs(ctx, tx, role)
		if err != nil {
			return err
		}
		artistsByRole[role] = m
	}

	clusterDim := make(map[dbtypes.ClusterID]int)
	trackClusters := make(map[dbtypes.TrackID]map[dbtypes.ClusterID]bool)
	for _, pair := range pairs {
		if _, ok := clusterDim[pair.ClusterID]; !ok {
			clusterDim[pair.ClusterID] = len(clusterDim)
		}
		set := trackClusters[pair.TrackID]
		if set == nil {
			set = make(map[dbtypes.ClusterID]bool)
			trackClusters[pair.TrackID] = set
		}
		set[pair.ClusterID] = true
	}

	dim := len(clusterDim)
	trackIDs := make([]dbtypes.TrackID, 0, len(trackClusters))
	for id := range trackClusters {
		trackIDs = append(trackIDs, id)
	}
	sort.Slice(trackIDs, func(i, j int) bool { return trackIDs[i] < trackIDs[j] })

	samples := make([]InputVector, len(trackIDs))
	for i, id := range trackIDs {
		v := make(InputVector, dim)
		for clusterID := range trackClusters[id] {
			v[clusterDim[clusterID]] = 1
		}
		samples[i] = v
	}

	if width <= 0 || height <= 0 {
		width, height = GridSize(len(samples))
	}
	if dim == 0 {
		dim = 1
		for i := range samples {
			samples[i] = InputVector{0}
		}
	}

	normalizer := NewDataNormalizer(dim)
	normalizer.ComputeNormalizationFactors(samples)
	for _, s := range samples {
		normalizer.Normalize(s)
	}

	network := NewNetwork(width, height, dim, rand.New(rand.NewSource(seed)))
	if len(samples) > 0 {
		network.Train(samples, trainIterations, nil)
	}

	trackPosition := make(map[dbtypes.TrackID]Position, len(trackIDs))
	cellTracks := make(map[Position][]dbtypes.TrackID)
	for i, id := range trackIDs {
		pos := network.ClosestPosition(samples[i])
		trackPosition[id] = pos
		cellTracks[pos] = append(cellTracks[pos], id)
	}

	releaseCells := make(map[dbtypes.ReleaseID]map[Position]int)
	artistCells := make(map[dbtypes.ArtistID]map[store.TrackArtistLinkType]map[Position]int)
	artistTrackCount := make(map[dbtypes.ArtistID]int)

	for id, pos := range trackPosition {
		if releaseID, ok := releaseOf[id]; ok {
			cells := releaseCells[releaseID]
			if cells == nil {
				cells = make(map[Position]int)
				releaseCells[releaseID] = cells
			}
			cells[pos]++
		}
		for _, role := range artistRoles {
			for _, artistID := range artistsByRole[role][id] {
				byRole := artistCells[artistID]
				if byRole == nil {
					byRole = make(map[store.TrackArtistLinkType]map[Position]int)
					artistCells[artistID] = byRole
				}
				cells := byRole[role]
				if cells == nil {
					cells = make(map[Position]int)
					byRole[role] = cells
				}
				cells[pos]++
				artistTrackCount[artistID]++
			}
		}
	}

	releaseSortName := make(map[dbtypes.ReleaseID]string, len(releaseCells))
	for releaseID := range releaseCells {
		if release, err := store.GetRelease(ctx, tx, releaseID); err == nil {
			releaseSortName[releaseID] = release.SortName
		}
	}
	artistSortName := make(map[dbtypes.ArtistID]string, len(artistCells))
	for artistID := range artistCells {
		if artist, err := store.GetArtist(ctx, tx, artistID); err == nil {
			artistSortName[artistID] = artist.SortName
		}
	}

	r.network = network
	r.trackPosition = trackPosition
	r.cellTracks = cellTracks
	r.releaseCells = releaseCells
	r.artistCells = artistCells
	r.artistTrackCount = artistTrackCount
	r.artistSortName = artistSortName
	r.releaseSortName = releaseSortName
	return nil
}

// Ready reports whether Retrain has completed at least once.
func (r *Recommender) Ready bool { return r.network != nil }

// SimilarTracks ranks every trained cell by distance from the seeds' cell
// and returns up to maxCount other tracks, nearest cell first, seed tracks
// themselves always excluded.
func (r *Recommender) SimilarTracks(seeds []dbtypes.TrackID, maxCount int) []dbtypes.TrackID {
	if !r.Ready || len(seeds) == 0 {
		return nil
	}
	exclude := make(map[dbtypes.TrackID]bool, len(seeds))
	var ref InputVector
	for _, id := range seeds {
		exclude[id] = true
		if pos, ok := r.trackPosition[id]; ok && ref == nil {
			ref = r.network.RefVector(pos)
		}
	}
	if ref == nil {
		return nil
	}
	return r.collectTracks(ref, exclude, maxCount)
}

// SimilarTracksFromTrackList classifies the centroid of every track in a
// playlist/tracklist and ranks catalog tracks by distance from it.
func (r *Recommender) SimilarTracksFromTrackList(trackIDs []dbtypes.TrackID, maxCount int) []dbtypes.TrackID {
	if !r.Ready || len(trackIDs) == 0 {
		return nil
	}
	var vectors []InputVector
	exclude := make(map[dbtypes.TrackID]bool, len(trackIDs))
	for _, id := range trackIDs {
		exclude[id] = true
		if pos, ok := r.trackPosition[id]; ok {
			vectors = append(vectors, r.network.RefVector(pos))
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	ref := centroid(vectors, len(vectors[0]))
	return r.collectTracks(ref, exclude, maxCount)
}

func centroid(vectors []InputVector, dim int) InputVector {
	out := make(InputVector, dim)
	for _, v := range vectors {
		for d := 0; d < dim && d < len(v); d++ {
			out[d] += v[d]
		}
	}
	if len(vectors) > 0 {
		for d := range out {
			out[d] /= float64(len(vectors))
		}
	}
	return out
}

func (r *Recommender) collectTracks(ref InputVector, exclude map[dbtypes.TrackID]bool, maxCount int) []dbtypes.TrackID {
	var out []dbtypes.TrackID
	for _, pos := range r.network.ClassifyN(ref, r.network.Width*r.network.Height) {
		candidates := append([]dbtypes.TrackID(nil), r.cellTracks[pos]...)
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
		for _, id := range candidates {
			if exclude[id] {
				continue
			}
			out = append(out, id)
			if len(out) >= maxCount {
				return out
			}
		}
	}
	return out
}

// SimilarReleases aggregates the cells of seed's constituent tracks and
// ranks every other release by cell-membership intersection count
// (descending), ties broken by ascending sort name.
func (r *Recommender) SimilarReleases(seed dbtypes.ReleaseID, maxCount int) []dbtypes.ReleaseID {
	if !r.Ready {
		return nil
	}
	seedCells, ok := r.releaseCells[seed]
	if !ok {
		return nil
	}

	type scored struct {
		id dbtypes.ReleaseID
		score int
	}
	var candidates []scored
	for releaseID, cells := range r.releaseCells {
		if releaseID == seed {
			continue
		}
		if score := intersectionScore(seedCells, cells); score > 0 {
			candidates = append(candidates, scored{id: releaseID, score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return r.releaseSortName[candidates[i].id] < r.releaseSortName[candidates[j].id]
	})

	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	out := make([]dbtypes.ReleaseID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// SimilarArtists aggregates the cells of seed's constituent tracks,
// restricted to roles (all roles if empty), and ranks every other artist
// sharing at least one cell by intersection count (descending), then
// aggregate track count (descending), then ascending sort name.
func (r *Recommender) SimilarArtists(seed dbtypes.ArtistID, roles []store.TrackArtistLinkType, maxCount int) []dbtypes.ArtistID {
	if !r.Ready {
		return nil
	}
	if len(roles) == 0 {
		roles = artistRoles
	}
	seedCells := mergeRoleCells(r.artistCells[seed], roles)
	if len(seedCells) == 0 {
		return nil
	}

	type scored struct {
		id dbtypes.ArtistID
		score int
	}
	var candidates []scored
	for artistID, byRole := range r.artistCells {
		if artistID == seed {
			continue
		}
		cells := mergeRoleCells(byRole, roles)
		if score := intersectionScore(seedCells, cells); score > 0 {
			candidates = append(candidates, scored{id: artistID, score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if r.artistTrackCount[candidates[i].id] != r.artistTrackCount[candidates[j].id] {
			return r.artistTrackCount[candidates[i].id] > r.artistTrackCount[candidates[j].id]
		}
		return r.artistSortName[candidates[i].id] < r.artistSortName[candidates[j].id]
	})

	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	out := make([]dbtypes.ArtistID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

func mergeRoleCells(byRole map[store.TrackArtistLinkType]map[Position]int, roles []store.TrackArtistLinkType) map[Position]int {
	out := make(map[Position]int)
	for _, role := range roles {
		for pos, count := range byRole[role] {
			out[pos] += count
		}
	}
	return out
}

func intersectionScore(a, b map[Position]int) int {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	score := 0
	for pos, count := range small {
		if other, ok := large[pos]; ok {
			if count < other {
				score += count
			} else {
				score += other
			}
		}
	}
	return score
}
