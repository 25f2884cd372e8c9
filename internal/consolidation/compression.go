package consolidation

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

// maxCompressedLength caps a synthesized summary's length (spec §4.6
// "summary limited to max_length").
const maxCompressedLength = 2000

// compressionThreshold is the minimum cluster size that gets summarized;
// same gate as clustering's minClusterSize since compression only ever
// runs against clustering's output.
const compressionThreshold = minClusterSize

// CompressionResult is one cluster's summarization outcome.
type CompressionResult struct {
	SourceHashes []string
	Summary      *models.Memory
}

// compressClusters synthesizes one summary memory per cluster at or above
// compressionThreshold, linking back to its sources via
// models.MetaSourceMemoryHashes. Originals are always retained; there is no
// option to replace them with the summary.
func compressClusters(ctx context.Context, backend storage.Backend, clusters []Cluster) ([]CompressionResult, error) {
	var results []CompressionResult
	for _, cluster := range clusters {
		if len(cluster.Members) < compressionThreshold {
			continue
		}

		var b strings.Builder
		hashes := make([]string, 0, len(cluster.Members))
		for i, m := range cluster.Members {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(m.Content)
			hashes = append(hashes, m.ContentHash)
		}
		summary := b.String()
		if len(summary) > maxCompressedLength {
			summary = summary[:maxCompressedLength]
		}

		mem := &models.Memory{
			Content:    fmt.Sprintf("[consolidated: %s]\n%s", cluster.Tag, summary),
			MemoryType: "pattern/recurring_issue",
			Tags:       []string{"consolidated", cluster.Tag},
			Metadata: models.Metadata{
				models.MetaSourceMemoryHashes: models.StringValue(strings.Join(hashes, ",")),
			},
		}
		if _, err := backend.Store(ctx, mem); err != nil {
			return results, fmt.Errorf("compress cluster %q: %w", cluster.Tag, err)
		}
		results = append(results, CompressionResult{SourceHashes: hashes, Summary: mem})
	}
	return results, nil
}
