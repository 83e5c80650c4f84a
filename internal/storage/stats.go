package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// FolderStat is a per-folder message count.
type FolderStat struct {
	Folder       string `json:"folder"`
	MessageCount int    `json:"message_count"`
}

// AccountStat is a per-account message count.
type AccountStat struct {
	AccountID    string `json:"account_id"`
	MessageCount int    `json:"message_count"`
}

// CacheStats aggregates mail cache counts, either for one account or
// for the whole store.
type CacheStats struct {
	AccountID     string        `json:"account_id,omitempty"`
	TotalMessages int           `json:"total_messages"`
	FolderCount   int           `json:"folder_count"`
	AccountCount  int           `json:"account_count,omitempty"`
	OldestCache   *time.Time    `json:"oldest_cache,omitempty"`
	NewestCache   *time.Time    `json:"newest_cache,omitempty"`
	Folders       []FolderStat  `json:"folders,omitempty"`
	Accounts      []AccountStat `json:"accounts,omitempty"`
}

// MailCacheStats computes cache statistics. An empty accountID yields
// store-wide stats with a per-account breakdown; otherwise the stats
// are scoped to that account with a per-folder breakdown.
func (s *SecureStorage) MailCacheStats(accountID string) (*CacheStats, error) {
	stats := &CacheStats{AccountID: accountID}

	var oldest, newest sql.NullString
	if accountID != "" {
		err := s.db.QueryRow(`
			SELECT COUNT(*), COUNT(DISTINCT folder), MIN(cached_at), MAX(cached_at)
			FROM mail_cache WHERE account_id = ?
		`, accountID).Scan(&stats.TotalMessages, &stats.FolderCount, &oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("failed to compute cache stats: %w", err)
		}

		rows, err := s.db.Query(`
			SELECT folder, COUNT(*) FROM mail_cache
			WHERE account_id = ?
			GROUP BY folder ORDER BY COUNT(*) DESC
		`, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to compute folder stats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var fs FolderStat
			if err := rows.Scan(&fs.Folder, &fs.MessageCount); err != nil {
				return nil, fmt.Errorf("failed to scan folder stats: %w", err)
			}
			stats.Folders = append(stats.Folders, fs)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	} else {
		err := s.db.QueryRow(`
			SELECT COUNT(*), COUNT(DISTINCT account_id), COUNT(DISTINCT account_id || '/' || folder), MIN(cached_at), MAX(cached_at)
			FROM mail_cache
		`).Scan(&stats.TotalMessages, &stats.AccountCount, &stats.FolderCount, &oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("failed to compute cache stats: %w", err)
		}

		rows, err := s.db.Query(`
			SELECT account_id, COUNT(*) FROM mail_cache
			GROUP BY account_id ORDER BY COUNT(*) DESC
		`)
		if err != nil {
			return nil, fmt.Errorf("failed to compute account stats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var as AccountStat
			if err := rows.Scan(&as.AccountID, &as.MessageCount); err != nil {
				return nil, fmt.Errorf("failed to scan account stats: %w", err)
			}
			stats.Accounts = append(stats.Accounts, as)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if oldest.Valid {
		t, err := parseTime(oldest.String)
		if err != nil {
			return nil, err
		}
		stats.OldestCache = &t
	}
	if newest.Valid {
		t, err := parseTime(newest.String)
		if err != nil {
			return nil, err
		}
		stats.NewestCache = &t
	}

	return stats, nil
}
