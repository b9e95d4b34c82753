package diary

import "time"

type JournalStatus string

const (
	StatusCollecting JournalStatus = "collecting"
	StatusMerged     JournalStatus = "merged"
)

// Journal is one user's entries for one calendar day. Status only ever moves
// from collecting to merged.
type Journal struct {
	ID     uint64        `gorm:"primaryKey"`
	UserID uint64        `gorm:"not null;uniqueIndex:uq_journals_user_day,priority:1"`
	Day    Date          `gorm:"type:varchar(10);not null;uniqueIndex:uq_journals_user_day,priority:2"`
	Status JournalStatus `gorm:"type:varchar(16);not null;default:'collecting';index"`

	// ExternalRef is set once, when the merged document has been published.
	ExternalRef *string `gorm:"type:text"`

	// MergeKey survives failed attempts so a retry can find a document an
	// interrupted attempt already created.
	MergeKey       *string    `gorm:"type:varchar(64)"`
	MergeStartedAt *time.Time
	MergedAt       *time.Time

	CreatedAt time.Time `gorm:"not null"`
}

func (j *Journal) Merged() bool { return j.Status == StatusMerged }

func (j *Journal) Ref() string {
	if j.ExternalRef == nil {
		return ""
	}
	return *j.ExternalRef
}

// Entry is a single captured submission. Entries are never updated.
type Entry struct {
	ID              uint64   `gorm:"primaryKey"`
	JournalID       uint64   `gorm:"index:idx_entries_journal_created,priority:1;not null"`
	Source          string   `gorm:"type:varchar(32);not null"`
	OriginMessageID *int64   `gorm:"index"`
	Content         string   `gorm:"type:text;not null"`
	Images          []string `gorm:"type:text;serializer:json"`
	Tags            []string `gorm:"type:text;serializer:json"`

	CreatedAt time.Time `gorm:"index:idx_entries_journal_created,priority:2;not null"`
}

const (
	PrefShowEntryTime   = "show_entry_time"
	PrefEntryTimeFormat = "entry_time_format"

	DefaultEntryTimeFormat = "%H:%M"
)

// UserPreferences controls how a user's merged documents are rendered.
type UserPreferences struct {
	UserID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	ShowEntryTime   bool   `gorm:"not null"`
	EntryTimeFormat string `gorm:"type:varchar(64);not null"`
}

func (UserPreferences) TableName() string { return "user_preferences" }

func DefaultPreferences(userID uint64) UserPreferences {
	return UserPreferences{
		UserID:          userID,
		ShowEntryTime:   true,
		EntryTimeFormat: DefaultEntryTimeFormat,
	}
}

// Message is what the transport layer delivers for one inbound submission.
// Images are already-resolved references and Tags are already extracted.
type Message struct {
	UserID          uint64
	OriginMessageID *int64
	Source          string
	Text            string
	Images          []string
	Tags            []string
}

// PendingMerge identifies a journal that is due for finalization.
type PendingMerge struct {
	UserID uint64
	Day    Date
}

// Summary describes a day's journal without its entries.
type Summary struct {
	Day         Date   `json:"date"`
	EntryCount  int    `json:"entry_count"`
	Status      string `json:"status"`
	ExternalRef string `json:"external_ref,omitempty"`
}

const SummaryStatusNone = "none"
