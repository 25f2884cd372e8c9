package store

import (
	"github.com/engramhq/engram/internal/models"
)

// TagRepairReport summarizes one RepairTags run, surfaced by "engram doctor
// --repair-tags".
type TagRepairReport struct {
	Scanned int
	Fixed   int
	Hashes  []string
}

// RepairTags re-normalizes every row's denormalized tags column through
// CleanTag/SerializeTags, fixing the legacy malformed forms (`["x"`,
// `"[tag]"`, `["a","b"]`) that an older client may have written directly.
// With dryRun true, rows are scanned and reported but never rewritten.
func RepairTags(db *DB, dryRun bool) (TagRepairReport, error) {
	rows, err := db.Query(`SELECT content_hash, tags FROM memories WHERE tags IS NOT NULL AND tags != ''`)
	if err != nil {
		return TagRepairReport{}, err
	}
	defer rows.Close()

	type fix struct {
		hash string
		tags string
	}
	var toFix []fix
	report := TagRepairReport{}

	for rows.Next() {
		var hash, tags string
		if err := rows.Scan(&hash, &tags); err != nil {
			return TagRepairReport{}, err
		}
		report.Scanned++

		repaired := models.SerializeTags(models.ParseTags(tags))
		if repaired != tags {
			toFix = append(toFix, fix{hash: hash, tags: repaired})
		}
	}
	if err := rows.Err(); err != nil {
		return TagRepairReport{}, err
	}

	for _, f := range toFix {
		report.Fixed++
		report.Hashes = append(report.Hashes, f.hash)
		if dryRun {
			continue
		}
		if _, err := db.Exec(`UPDATE memories SET tags = ? WHERE content_hash = ?`, f.tags, f.hash); err != nil {
			return report, err
		}
	}

	return report, nil
}
