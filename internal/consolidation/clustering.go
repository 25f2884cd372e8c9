package consolidation

import "github.com/engramhq/engram/internal/models"

// Cluster groups memories judged close enough to compress together.
type Cluster struct {
	Tag     string
	Members []*models.Memory
}

// minClusterSize is the gate below which a tag-group is noise, not a
// cluster (spec §4.6 "minimum cluster size gate").
const minClusterSize = 3

// clusterByTag implements the "simple threshold" clustering strategy spec
// §4.6 allows alongside DBSCAN/hierarchical: memories sharing a tag form a
// candidate cluster once the group reaches minClusterSize. The primary
// storage.Backend contract doesn't expose raw embeddings to callers outside
// internal/store, so tag-overlap is used as the similarity signal instead
// of cosine distance over vectors (recorded as an Open Question decision).
func clusterByTag(memories []*models.Memory) []Cluster {
	byTag := make(map[string][]*models.Memory)
	for _, m := range memories {
		for _, t := range m.Tags {
			byTag[t] = append(byTag[t], m)
		}
	}

	var clusters []Cluster
	for tag, members := range byTag {
		if len(members) >= minClusterSize {
			clusters = append(clusters, Cluster{Tag: tag, Members: members})
		}
	}
	return clusters
}
