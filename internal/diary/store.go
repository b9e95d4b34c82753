package diary

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the durable home of journals, entries and user preferences. Each
// method is a single atomic operation.
type Store struct {
	DB *gorm.DB

	// Now stamps new rows. Defaults to time.Now.
	Now func() time.Time
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// GetOrCreateJournal returns the journal for (userID, day), creating it in
// status collecting when it does not exist yet. Concurrent calls for the same
// key converge on one row through the unique (user_id, day) index.
func (s *Store) GetOrCreateJournal(ctx context.Context, userID uint64, day Date) (*Journal, error) {
	j := Journal{
		UserID:    userID,
		Day:       day,
		Status:    StatusCollecting,
		CreatedAt: s.now(),
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoNothing: true,
		}).
		Create(&j).Error
	if err != nil {
		return nil, storageErr("create journal", err)
	}

	var out Journal
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		First(&out).Error; err != nil {
		return nil, storageErr("load journal", err)
	}
	return &out, nil
}

// GetJournal returns ErrNotFound when the user has no journal for day.
func (s *Store) GetJournal(ctx context.Context, userID uint64, day Date) (*Journal, error) {
	var j Journal
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get journal", err)
	}
	return &j, nil
}

func (s *Store) getJournalByID(ctx context.Context, id uint64) (*Journal, error) {
	var j Journal
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get journal", err)
	}
	return &j, nil
}

// AddEntry inserts e and returns it with its id and creation time assigned.
// The journal must be collecting and not claimed by a merge; otherwise
// ErrJournalMerged or ErrMergeInProgress is returned and nothing is stored.
func (s *Store) AddEntry(ctx context.Context, e Entry) (*Entry, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", e.JournalID)
		if tx.Dialector.Name() == "postgres" {
			// ClaimMerge waits on this row until the entry is committed
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var j Journal
		if err := q.First(&j).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if j.Merged() {
			return ErrJournalMerged
		}
		if j.MergeStartedAt != nil {
			return ErrMergeInProgress
		}

		e.ID = 0
		e.CreatedAt = s.now()
		if e.Images == nil {
			e.Images = []string{}
		}
		if e.Tags == nil {
			e.Tags = []string{}
		}
		return tx.Create(&e).Error
	})
	if errors.Is(err, ErrJournalMerged) || errors.Is(err, ErrMergeInProgress) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("add entry", err)
	}
	return &e, nil
}

// GetEntries lists a journal's entries oldest first. Ties on the timestamp
// fall back to insertion order.
func (s *Store) GetEntries(ctx context.Context, journalID uint64) ([]Entry, error) {
	var out []Entry
	if err := s.DB.WithContext(ctx).
		Where("journal_id = ?", journalID).
		Order("created_at asc, id asc").
		Find(&out).Error; err != nil {
		return nil, storageErr("get entries", err)
	}
	return out, nil
}

// GetCollectingJournals returns every collecting journal dated strictly
// before the given day.
func (s *Store) GetCollectingJournals(ctx context.Context, before Date) ([]Journal, error) {
	var out []Journal
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND day < ?", StatusCollecting, before).
		Order("day asc, user_id asc").
		Find(&out).Error; err != nil {
		return nil, storageErr("get collecting journals", err)
	}
	return out, nil
}

// ClaimMerge reserves a collecting journal for one merge attempt. A claim
// older than lease is treated as abandoned and can be taken over. The first
// claim stores key as the journal's merge key; later claims keep the stored
// one. It reports false when the journal is merged or claimed by someone else.
func (s *Store) ClaimMerge(ctx context.Context, journalID uint64, key string, lease time.Duration) (*Journal, bool, error) {
	now := s.now()
	res := s.DB.WithContext(ctx).
		Model(&Journal{}).
		Where("id = ? AND status = ?", journalID, StatusCollecting).
		Where("merge_started_at IS NULL OR merge_started_at < ?", now.Add(-lease)).
		Updates(map[string]any{
			"merge_key":        gorm.Expr("COALESCE(merge_key, ?)", key),
			"merge_started_at": now,
		})
	if res.Error != nil {
		return nil, false, storageErr("claim merge", res.Error)
	}

	j, err := s.getJournalByID(ctx, journalID)
	if err != nil {
		return nil, false, err
	}
	return j, res.RowsAffected == 1, nil
}

// ReleaseMerge ends a claim without merging. The merge key is kept.
func (s *Store) ReleaseMerge(ctx context.Context, journalID uint64) error {
	err := s.DB.WithContext(ctx).
		Model(&Journal{}).
		Where("id = ? AND status = ?", journalID, StatusCollecting).
		Update("merge_started_at", nil).Error
	return storageErr("release merge", err)
}

// MarkJournalMerged moves a collecting journal to merged and records ref.
// Marking an already merged journal again is a no-op; the first reference
// wins.
func (s *Store) MarkJournalMerged(ctx context.Context, journalID uint64, ref string) error {
	now := s.now()
	res := s.DB.WithContext(ctx).
		Model(&Journal{}).
		Where("id = ? AND status = ?", journalID, StatusCollecting).
		Updates(map[string]any{
			"status":           StatusMerged,
			"external_ref":     ref,
			"merged_at":        now,
			"merge_started_at": nil,
		})
	if res.Error != nil {
		return storageErr("mark merged", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// nothing updated: either already merged or gone
	j, err := s.getJournalByID(ctx, journalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return storageErr("mark merged", ErrNotFound)
		}
		return err
	}
	if !j.Merged() {
		return storageErr("mark merged", errors.New("journal status did not change"))
	}
	return nil
}

// GetUserPreferences never fails for a missing row; it returns the defaults.
func (s *Store) GetUserPreferences(ctx context.Context, userID uint64) (UserPreferences, error) {
	var p UserPreferences
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultPreferences(userID), nil
		}
		return UserPreferences{}, storageErr("get preferences", err)
	}
	return p, nil
}

// SetUserPreference writes one preference, creating the row from defaults
// when the user has none. Value must be a bool for show_entry_time and a
// string for entry_time_format.
func (s *Store) SetUserPreference(ctx context.Context, userID uint64, key string, value any) error {
	row := DefaultPreferences(userID)
	switch key {
	case PrefShowEntryTime:
		v, ok := value.(bool)
		if !ok {
			return ErrInvalidPreference
		}
		row.ShowEntryTime = v
	case PrefEntryTimeFormat:
		v, ok := value.(string)
		if !ok {
			return ErrInvalidPreference
		}
		row.EntryTimeFormat = v
	default:
		return ErrUnknownPreference
	}

	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{key}),
		}).
		Create(&row).Error
	return storageErr("set preference", err)
}
