package diary

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLabel      = "journal"
	DefaultMergeLease = 5 * time.Minute
	DefaultSource     = "telegram"
)

// JournalStore is the persistence contract the service depends on. *Store
// implements it.
type JournalStore interface {
	GetOrCreateJournal(ctx context.Context, userID uint64, day Date) (*Journal, error)
	GetJournal(ctx context.Context, userID uint64, day Date) (*Journal, error)
	AddEntry(ctx context.Context, e Entry) (*Entry, error)
	GetEntries(ctx context.Context, journalID uint64) ([]Entry, error)
	GetCollectingJournals(ctx context.Context, before Date) ([]Journal, error)
	ClaimMerge(ctx context.Context, journalID uint64, key string, lease time.Duration) (*Journal, bool, error)
	ReleaseMerge(ctx context.Context, journalID uint64) error
	MarkJournalMerged(ctx context.Context, journalID uint64, ref string) error
	GetUserPreferences(ctx context.Context, userID uint64) (UserPreferences, error)
	SetUserPreference(ctx context.Context, userID uint64, key string, value any) error
}

// Publisher creates the external document for a merged journal and returns
// a reference to it.
type Publisher interface {
	Create(ctx context.Context, doc Document) (string, error)
}

// Finder is implemented by publishers that can look up a document created
// by an earlier attempt with the same key.
type Finder interface {
	FindByKey(ctx context.Context, key string) (ref string, found bool, err error)
}

// Updater is implemented by publishers that can rewrite a published body.
type Updater interface {
	Update(ctx context.Context, ref, body string) error
}

// Service holds the diary rules. It keeps no state between calls; every
// operation reads what it needs from the store.
type Service struct {
	Store     JournalStore
	Publisher Publisher

	Location   *time.Location
	Label      string
	MergeLease time.Duration

	Now    func() time.Time
	NewKey func() string
	Logger *log.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

func (s *Service) label() string {
	if s.Label != "" {
		return s.Label
	}
	return DefaultLabel
}

func (s *Service) lease() time.Duration {
	if s.MergeLease > 0 {
		return s.MergeLease
	}
	return DefaultMergeLease
}

func (s *Service) newKey() string {
	if s.NewKey != nil {
		return s.NewKey()
	}
	return uuid.NewString()
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Today is the current calendar day in the configured timezone.
func (s *Service) Today() Date {
	return DateOf(s.now(), s.location())
}

// ReservedLabel is the label every merged document carries.
func (s *Service) ReservedLabel() string { return s.label() }

// AddMessage appends a message to the user's journal for today. A day that
// has already been merged does not accept more entries, and neither does one
// whose merge is running; the caller may resend after ErrMergeInProgress.
func (s *Service) AddMessage(ctx context.Context, msg Message) (*Entry, error) {
	j, err := s.Store.GetOrCreateJournal(ctx, msg.UserID, s.Today())
	if err != nil {
		return nil, err
	}
	if j.Merged() {
		return nil, ErrJournalMerged
	}

	source := msg.Source
	if source == "" {
		source = DefaultSource
	}
	images := make([]string, 0, len(msg.Images))
	for _, ref := range msg.Images {
		if ref = strings.TrimSpace(ref); ref != "" {
			images = append(images, ref)
		}
	}
	if strings.TrimSpace(msg.Text) == "" && len(images) == 0 {
		return nil, ErrEmptyMessage
	}

	return s.Store.AddEntry(ctx, Entry{
		JournalID:       j.ID,
		Source:          source,
		OriginMessageID: msg.OriginMessageID,
		Content:         msg.Text,
		Images:          images,
		Tags:            normalizeTags(msg.Tags, s.label()),
	})
}

// ShouldMerge reports whether the journal for (userID, day) is due for
// automatic merging: the day is over and the journal is still collecting.
func (s *Service) ShouldMerge(ctx context.Context, userID uint64, day Date) (bool, error) {
	if !day.Before(s.Today()) {
		return false, nil
	}
	j, err := s.Store.GetJournal(ctx, userID, day)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return j.Status == StatusCollecting, nil
}

// GetPendingMerges lists every collecting journal from a previous day. It is
// recomputed from the store on each call.
func (s *Service) GetPendingMerges(ctx context.Context) ([]PendingMerge, error) {
	journals, err := s.Store.GetCollectingJournals(ctx, s.Today())
	if err != nil {
		return nil, err
	}
	out := make([]PendingMerge, 0, len(journals))
	for _, j := range journals {
		out = append(out, PendingMerge{UserID: j.UserID, Day: j.Day})
	}
	return out, nil
}

// MergeJournal publishes the journal for (userID, day) and marks it merged.
// It returns "" with a nil error when there is nothing to publish (no journal
// or no entry with content). A merged journal returns its stored reference
// without publishing again. Publisher errors are returned unchanged and leave
// the journal collecting.
//
// Entries are read only after the claim is held. AddEntry refuses claimed
// journals, so the published document holds every stored entry.
func (s *Service) MergeJournal(ctx context.Context, userID uint64, day Date) (string, error) {
	j, err := s.Store.GetJournal(ctx, userID, day)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if j.Merged() {
		return j.Ref(), nil
	}

	key := s.newKey()
	claimed, ok, err := s.Store.ClaimMerge(ctx, j.ID, key, s.lease())
	if err != nil {
		return "", err
	}
	if !ok {
		if claimed.Merged() {
			return claimed.Ref(), nil
		}
		return "", ErrMergeInProgress
	}
	resumed := claimed.MergeKey != nil && *claimed.MergeKey != key
	if claimed.MergeKey != nil {
		key = *claimed.MergeKey
	}

	entries, err := s.Store.GetEntries(ctx, j.ID)
	if err != nil {
		s.release(ctx, userID, day, j.ID)
		return "", err
	}
	if !publishable(entries) {
		s.release(ctx, userID, day, j.ID)
		return "", nil
	}

	ref, err := s.publish(ctx, userID, day, entries, key, resumed)
	if err != nil {
		s.release(ctx, userID, day, j.ID)
		return "", err
	}

	if err := s.Store.MarkJournalMerged(ctx, j.ID, ref); err != nil {
		return "", err
	}
	s.logf("journal merged user=%d date=%s ref=%s", userID, day, ref)
	return ref, nil
}

func (s *Service) release(ctx context.Context, userID uint64, day Date, journalID uint64) {
	if err := s.Store.ReleaseMerge(ctx, journalID); err != nil {
		s.logf("release merge claim failed user=%d date=%s: %v", userID, day, err)
	}
}

func (s *Service) publish(ctx context.Context, userID uint64, day Date, entries []Entry, key string, resumed bool) (string, error) {
	if resumed {
		if f, ok := s.Publisher.(Finder); ok {
			ref, found, err := f.FindByKey(ctx, key)
			if err != nil {
				return "", err
			}
			if found {
				s.logf("reusing document from interrupted merge user=%d date=%s ref=%s", userID, day, ref)
				return ref, nil
			}
		}
	}

	prefs, err := s.Store.GetUserPreferences(ctx, userID)
	if err != nil {
		return "", err
	}
	doc, err := RenderDocument(day, entries, prefs, s.location(), s.label())
	if err != nil {
		return "", err
	}
	doc.Key = key
	return s.Publisher.Create(ctx, doc)
}

// RefreshJournal re-renders a merged journal with the user's current
// preferences and rewrites the published body.
func (s *Service) RefreshJournal(ctx context.Context, userID uint64, day Date) error {
	u, ok := s.Publisher.(Updater)
	if !ok {
		return ErrUpdateUnsupported
	}
	j, err := s.Store.GetJournal(ctx, userID, day)
	if err != nil {
		return err
	}
	if !j.Merged() || j.Ref() == "" {
		return fmt.Errorf("%w: %s", ErrJournalNotMerged, day)
	}
	entries, err := s.Store.GetEntries(ctx, j.ID)
	if err != nil {
		return err
	}
	prefs, err := s.Store.GetUserPreferences(ctx, userID)
	if err != nil {
		return err
	}
	doc, err := RenderDocument(day, entries, prefs, s.location(), s.label())
	if err != nil {
		return err
	}
	return u.Update(ctx, j.Ref(), doc.Body)
}

// Summary reports the entry count and status of a day's journal. A day
// without a journal has status "none".
func (s *Service) Summary(ctx context.Context, userID uint64, day Date) (Summary, error) {
	out := Summary{Day: day, Status: SummaryStatusNone}
	j, err := s.Store.GetJournal(ctx, userID, day)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return out, nil
		}
		return Summary{}, err
	}
	entries, err := s.Store.GetEntries(ctx, j.ID)
	if err != nil {
		return Summary{}, err
	}
	out.EntryCount = len(entries)
	out.Status = string(j.Status)
	out.ExternalRef = j.Ref()
	return out, nil
}

func (s *Service) Preferences(ctx context.Context, userID uint64) (UserPreferences, error) {
	return s.Store.GetUserPreferences(ctx, userID)
}

// SetPreference parses and validates a user-supplied preference value.
// show_entry_time accepts on/off as well as the usual boolean spellings.
func (s *Service) SetPreference(ctx context.Context, userID uint64, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case PrefShowEntryTime:
		b, err := parseSwitch(value)
		if err != nil {
			return err
		}
		return s.Store.SetUserPreference(ctx, userID, key, b)
	case PrefEntryTimeFormat:
		if err := ValidateTimeFormat(value); err != nil {
			return err
		}
		return s.Store.SetUserPreference(ctx, userID, key, value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPreference, key)
	}
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidPreference, PrefShowEntryTime, v)
	}
	return b, nil
}
