package store

import (
	"context"

	"lms/internal/dbtypes"
)

// ListClusterTypes returns every cluster type (genre, mood, grouping, ...)
// recorded so far, used to populate the browse-by-cluster UI.
func ListClusterTypes(ctx context.Context, tx *Tx) ([]ClusterType, error) {
	rows, err := tx.Query(ctx, `SELECT id, name FROM cluster_type ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []ClusterType
	for rows.Next {
		var c ClusterType
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err
}

// ListClustersByType returns every cluster value under a given type,
// e.g. every genre name, ordered by name.
func ListClustersByType(ctx context.Context, tx *Tx, typeID dbtypes.ClusterTypeID) ([]Cluster, error) {
	rows, err := tx.Query(ctx, `SELECT id, cluster_type_id, name FROM cluster WHERE cluster_type_id = ? ORDER BY name`, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []Cluster
	for rows.Next {
		var c Cluster
		if err := rows.Scan(&c.ID, &c.ClusterTypeID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err
}

// ClusterTrackCount reports how many tracks carry a given cluster.
func ClusterTrackCount(ctx context.Context, tx *Tx, clusterID dbtypes.ClusterID) (int, error) {
	var count int
	row := tx.QueryRow(ctx, `SELECT COUNT(*) FROM track_cluster WHERE cluster_id = ?`, clusterID)
	return count, row.Scan(&count)
}

// DeleteOrphanClusters removes cluster rows no longer referenced by any
// track, run by the scanner's ComputeClusterStats step.
func DeleteOrphanClusters(ctx context.Context, tx *Tx) (int64, error) {
	res, err := tx.Exec(ctx, `DELETE FROM cluster WHERE id NOT IN (SELECT DISTINCT cluster_id FROM track_cluster)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected
}

// AllTrackClusterPairs streams the full track_cluster join table, the raw
// material the SOM trainer's input vectors are built from (one input
// vector per track, one dimension per cluster).
func AllTrackClusterPairs(ctx context.Context, tx *Tx) ([]struct {
	TrackID dbtypes.TrackID
	ClusterID dbtypes.ClusterID
}, error) {
	rows, err := tx.Query(ctx, `SELECT track_id, cluster_id FROM track_cluster`)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []struct {
		TrackID dbtypes.TrackID
		ClusterID dbtypes.ClusterID
	}
	for rows.Next {
		var row struct {
			TrackID dbtypes.TrackID
			ClusterID dbtypes.ClusterID
		}
		if err := rows.Scan(&row.TrackID, &row.ClusterID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err
}
