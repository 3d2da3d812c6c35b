package backup

import (
	"log"
	"sort"
)

// expired returns the completed backups beyond the newest keep. keep <= 0
// keeps everything.
func expired(records []*BackupRecord, keep int) []*BackupRecord {
	if keep <= 0 {
		return nil
	}

	var completed []*BackupRecord
	for _, record := range records {
		if record.Status == StatusCompleted {
			completed = append(completed, record)
		}
	}
	if len(completed) <= keep {
		return nil
	}

	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].CreatedAt.After(completed[j].CreatedAt)
	})
	return completed[keep:]
}

// EnforceRetention deletes the oldest completed backups beyond the
// configured count
func (m *Manager) EnforceRetention() (int, error) {
	keep := m.cfg.Retention
	if keep <= 0 {
		return 0, nil
	}

	records, err := m.store.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, record := range expired(records, keep) {
		log.Printf("[Retention] Deleting old backup: %s (created: %s)",
			record.ID, record.CreatedAt.Format("2006-01-02 15:04:05"))
		if err := m.delete(record); err != nil {
			log.Printf("[Retention] Error deleting backup %s: %v", record.ID, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Printf("[Retention] Retention enforcement complete: deleted %d backups", deleted)
	}
	return deleted, nil
}
