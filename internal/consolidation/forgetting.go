package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

// ForgetAction is the disposition forgetting chose for one memory.
type ForgetAction string

const (
	ActionKept      ForgetAction = "kept"
	ActionArchived  ForgetAction = "archived"
	ActionDeleted   ForgetAction = "deleted"
)

// ForgettingResult records what happened to one memory during the
// forgetting phase.
type ForgettingResult struct {
	ContentHash string
	Action      ForgetAction
	Score       float64
}

// ForgettingPolicy holds the two relevance thresholds spec §4.6 calls
// "configurable": below archiveBelow the memory is archived, below
// deleteBelow it is deleted outright instead.
type ForgettingPolicy struct {
	ArchiveBelow float64
	DeleteBelow  float64
	ArchivePath  string
}

// DefaultForgettingPolicy matches the retrieved forgetting_engine defaults:
// archive candidates below 0.1 relevance, delete only once relevance falls
// under 0.05 (deep into decayed territory).
func DefaultForgettingPolicy() ForgettingPolicy {
	return ForgettingPolicy{ArchiveBelow: 0.1, DeleteBelow: 0.05, ArchivePath: ""}
}

// archivedRecord is one line of the archive file's JSONL export.
type archivedRecord struct {
	ContentHash string  `json:"content_hash"`
	Content     string  `json:"content"`
	MemoryType  string  `json:"memory_type"`
	ArchivedAt  float64 `json:"archived_at"`
}

// applyForgetting walks scores in the order given, archiving or deleting
// candidates under policy's thresholds. Protected memories are never
// forgotten (decay.go's 0.5 floor already keeps their score out of range,
// but the check is kept explicit here for defense in depth).
func applyForgetting(ctx context.Context, backend storage.Backend, byHash map[string]*models.Memory, scores []RelevanceScore, policy ForgettingPolicy, now time.Time) ([]ForgettingResult, error) {
	var results []ForgettingResult
	var archiveFile *os.File
	if policy.ArchivePath != "" {
		f, err := os.OpenFile(policy.ArchivePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open archive path: %w", err)
		}
		defer f.Close()
		archiveFile = f
	}

	for _, score := range scores {
		m, ok := byHash[score.MemoryHash]
		if !ok || m.IsProtected() {
			results = append(results, ForgettingResult{ContentHash: score.MemoryHash, Action: ActionKept, Score: score.TotalScore})
			continue
		}

		switch {
		case score.TotalScore < policy.DeleteBelow:
			if _, err := backend.Delete(ctx, score.MemoryHash); err != nil {
				return results, fmt.Errorf("delete %s: %w", score.MemoryHash, err)
			}
			results = append(results, ForgettingResult{ContentHash: score.MemoryHash, Action: ActionDeleted, Score: score.TotalScore})

		case score.TotalScore < policy.ArchiveBelow:
			if archiveFile != nil {
				rec := archivedRecord{ContentHash: m.ContentHash, Content: m.Content, MemoryType: m.MemoryType, ArchivedAt: float64(now.Unix())}
				line, err := json.Marshal(rec)
				if err == nil {
					archiveFile.Write(append(line, '\n'))
				}
			}
			if _, err := backend.Delete(ctx, score.MemoryHash); err != nil {
				return results, fmt.Errorf("archive-delete %s: %w", score.MemoryHash, err)
			}
			results = append(results, ForgettingResult{ContentHash: score.MemoryHash, Action: ActionArchived, Score: score.TotalScore})

		default:
			results = append(results, ForgettingResult{ContentHash: score.MemoryHash, Action: ActionKept, Score: score.TotalScore})
		}
	}
	return results, nil
}

// previewForgetting classifies scores the same way applyForgetting does but
// never calls Delete or writes the archive file, for --dry-run previews.
func previewForgetting(byHash map[string]*models.Memory, scores []RelevanceScore, policy ForgettingPolicy) []ForgettingResult {
	var results []ForgettingResult
	for _, score := range scores {
		m, ok := byHash[score.MemoryHash]
		action := ActionKept
		switch {
		case !ok || m.IsProtected():
			action = ActionKept
		case score.TotalScore < policy.DeleteBelow:
			action = ActionDeleted
		case score.TotalScore < policy.ArchiveBelow:
			action = ActionArchived
		}
		results = append(results, ForgettingResult{ContentHash: score.MemoryHash, Action: action, Score: score.TotalScore})
	}
	return results
}
