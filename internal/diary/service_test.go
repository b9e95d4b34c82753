package diary_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"diary/internal/diary"
)

func TestAddMessageAppendsToToday(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t, &fakePublisher{})

	e, err := svc.AddMessage(ctx, text(1, "hello #x #journal"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.Source != diary.DefaultSource {
		t.Fatalf("source = %q", e.Source)
	}
	if !reflect.DeepEqual(e.Tags, []string{"x"}) {
		t.Fatalf("tags = %v", e.Tags)
	}

	j, err := st.GetJournal(ctx, 1, svc.Today())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if e.JournalID != j.ID {
		t.Fatalf("entry landed in journal %d, want %d", e.JournalID, j.ID)
	}
}

func TestAddMessageAfterMergeIsRejected(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, &fakePublisher{})

	if _, err := svc.AddMessage(ctx, text(1, "first")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.MergeJournal(ctx, 1, svc.Today()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := svc.AddMessage(ctx, text(1, "late")); !errors.Is(err, diary.ErrJournalMerged) {
		t.Fatalf("err = %v", err)
	}
}

func TestShouldMerge(t *testing.T) {
	ctx := context.Background()
	svc, _, c := newService(t, &fakePublisher{})
	day := svc.Today()

	if ok, _ := svc.ShouldMerge(ctx, 1, day); ok {
		t.Fatalf("missing journal should not merge")
	}
	if _, err := svc.AddMessage(ctx, text(1, "x")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ok, _ := svc.ShouldMerge(ctx, 1, day); ok {
		t.Fatalf("today should not merge")
	}

	c.Advance(24 * time.Hour)
	if ok, err := svc.ShouldMerge(ctx, 1, day); !ok || err != nil {
		t.Fatalf("past collecting journal ok=%v err=%v", ok, err)
	}

	if _, err := svc.MergeJournal(ctx, 1, day); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if ok, _ := svc.ShouldMerge(ctx, 1, day); ok {
		t.Fatalf("merged journal should not merge again")
	}
}

func TestGetPendingMerges(t *testing.T) {
	ctx := context.Background()
	svc, _, c := newService(t, &fakePublisher{})
	day := svc.Today()

	_, _ = svc.AddMessage(ctx, text(1, "a"))
	_, _ = svc.AddMessage(ctx, text(2, "b"))
	if got, _ := svc.GetPendingMerges(ctx); len(got) != 0 {
		t.Fatalf("today's journals are not pending: %v", got)
	}

	c.Advance(24 * time.Hour)
	_, _ = svc.AddMessage(ctx, text(1, "c"))

	got, err := svc.GetPendingMerges(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	want := []diary.PendingMerge{{UserID: 1, Day: day}, {UserID: 2, Day: day}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
}

func TestMergeEndToEnd(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, st, c := newService(t, pub)
	day := svc.Today()

	if _, err := svc.AddMessage(ctx, text(1, "hello #x")); err != nil {
		t.Fatalf("add text: %v", err)
	}
	c.Advance(time.Hour)
	if _, err := svc.AddMessage(ctx, diary.Message{UserID: 1, Images: []string{"/content/images/p.jpg"}}); err != nil {
		t.Fatalf("add image: %v", err)
	}

	ref, err := svc.MergeJournal(ctx, 1, day)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if ref == "" || pub.created() != 1 {
		t.Fatalf("ref=%q created=%d", ref, pub.created())
	}

	doc := pub.last()
	if doc.Title != "20240212" {
		t.Fatalf("title = %q", doc.Title)
	}
	if i, k := strings.Index(doc.Body, "hello #x"), strings.Index(doc.Body, "![](/content/images/p.jpg)"); i < 0 || k < i {
		t.Fatalf("body order wrong:\n%s", doc.Body)
	}
	if !reflect.DeepEqual(doc.Labels, []string{"x", "journal"}) {
		t.Fatalf("labels = %v", doc.Labels)
	}
	if doc.Key == "" {
		t.Fatalf("document carries no merge key")
	}

	j, _ := st.GetJournal(ctx, 1, day)
	if !j.Merged() || j.Ref() != ref {
		t.Fatalf("journal = %+v", j)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _, _ := newService(t, pub)
	day := svc.Today()
	_, _ = svc.AddMessage(ctx, text(1, "once"))

	first, err := svc.MergeJournal(ctx, 1, day)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.MergeJournal(ctx, 1, day)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second || pub.created() != 1 {
		t.Fatalf("first=%q second=%q created=%d", first, second, pub.created())
	}
}

func TestMergeNothingToPublish(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, st, _ := newService(t, pub)
	day := svc.Today()

	ref, err := svc.MergeJournal(ctx, 1, day)
	if err != nil || ref != "" {
		t.Fatalf("missing journal ref=%q err=%v", ref, err)
	}

	if _, err := st.GetOrCreateJournal(ctx, 1, day); err != nil {
		t.Fatalf("journal: %v", err)
	}
	ref, err = svc.MergeJournal(ctx, 1, day)
	if err != nil || ref != "" {
		t.Fatalf("empty journal ref=%q err=%v", ref, err)
	}
	if pub.created() != 0 {
		t.Fatalf("publisher called %d times", pub.created())
	}
	j, _ := st.GetJournal(ctx, 1, day)
	if j.Merged() {
		t.Fatalf("empty journal must stay collecting")
	}
}

func TestMergeFailureLeavesJournalCollecting(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{failCreate: 1}
	svc, st, _ := newService(t, pub)
	day := svc.Today()
	_, _ = svc.AddMessage(ctx, text(1, "retry me"))

	_, err := svc.MergeJournal(ctx, 1, day)
	var ext *diary.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("err = %v", err)
	}
	j, _ := st.GetJournal(ctx, 1, day)
	if j.Merged() || j.MergeStartedAt != nil {
		t.Fatalf("journal after failure = %+v", j)
	}

	ref, err := svc.MergeJournal(ctx, 1, day)
	if err != nil || ref == "" {
		t.Fatalf("retry ref=%q err=%v", ref, err)
	}
	if pub.created() != 1 {
		t.Fatalf("created = %d", pub.created())
	}
}

func TestMergeResumesLostCreate(t *testing.T) {
	ctx := context.Background()
	pub := &finderPublisher{fakePublisher: &fakePublisher{lostResponse: 1}}
	svc, _, _ := newService(t, pub)
	day := svc.Today()
	_, _ = svc.AddMessage(ctx, text(1, "only once"))

	if _, err := svc.MergeJournal(ctx, 1, day); err == nil {
		t.Fatalf("expected the lost response to surface as an error")
	}

	ref, err := svc.MergeJournal(ctx, 1, day)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if pub.created() != 1 {
		t.Fatalf("document created %d times", pub.created())
	}
	if pub.lookups != 1 || ref != pub.refs[0] {
		t.Fatalf("lookups=%d ref=%q", pub.lookups, ref)
	}
}

func TestMergeInProgress(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, st, _ := newService(t, pub)
	day := svc.Today()
	_, _ = svc.AddMessage(ctx, text(1, "x"))

	j, _ := st.GetJournal(ctx, 1, day)
	if _, ok, _ := st.ClaimMerge(ctx, j.ID, "other-worker", time.Hour); !ok {
		t.Fatalf("claim failed")
	}

	if _, err := svc.MergeJournal(ctx, 1, day); !errors.Is(err, diary.ErrMergeInProgress) {
		t.Fatalf("err = %v", err)
	}
	if pub.created() != 0 {
		t.Fatalf("publisher called while another merge holds the claim")
	}
}

func TestRefreshJournal(t *testing.T) {
	ctx := context.Background()
	pub := &finderPublisher{fakePublisher: &fakePublisher{}}
	svc, _, _ := newService(t, pub)
	day := svc.Today()
	_, _ = svc.AddMessage(ctx, text(1, "body"))

	if err := svc.RefreshJournal(ctx, 1, day); !errors.Is(err, diary.ErrJournalNotMerged) {
		t.Fatalf("refresh before merge err = %v", err)
	}

	ref, err := svc.MergeJournal(ctx, 1, day)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := svc.SetPreference(ctx, 1, diary.PrefShowEntryTime, "off"); err != nil {
		t.Fatalf("pref: %v", err)
	}
	if err := svc.RefreshJournal(ctx, 1, day); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pub.updates[ref] != "body" {
		t.Fatalf("updated body = %q", pub.updates[ref])
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, &fakePublisher{})
	day := svc.Today()

	s, err := svc.Summary(ctx, 1, day)
	if err != nil || s.Status != diary.SummaryStatusNone || s.EntryCount != 0 {
		t.Fatalf("empty summary = %+v err=%v", s, err)
	}

	_, _ = svc.AddMessage(ctx, text(1, "a"))
	_, _ = svc.AddMessage(ctx, text(1, "b"))
	ref, _ := svc.MergeJournal(ctx, 1, day)

	s, _ = svc.Summary(ctx, 1, day)
	if s.EntryCount != 2 || s.Status != string(diary.StatusMerged) || s.ExternalRef != ref {
		t.Fatalf("summary = %+v", s)
	}
}

func TestSetPreference(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, &fakePublisher{})

	cases := []struct {
		key, value string
		wantErr    error
	}{
		{diary.PrefShowEntryTime, "off", nil},
		{diary.PrefShowEntryTime, "YES", nil},
		{diary.PrefShowEntryTime, "maybe", diary.ErrInvalidPreference},
		{diary.PrefEntryTimeFormat, "%H:%M:%S", nil},
		{diary.PrefEntryTimeFormat, "", diary.ErrInvalidPreference},
		{"theme", "dark", diary.ErrUnknownPreference},
	}
	for _, tc := range cases {
		err := svc.SetPreference(ctx, 1, tc.key, tc.value)
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s=%q: %v", tc.key, tc.value, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s=%q: err = %v, want %v", tc.key, tc.value, err, tc.wantErr)
		}
	}

	p, _ := svc.Preferences(ctx, 1)
	if !p.ShowEntryTime || p.EntryTimeFormat != "%H:%M:%S" {
		t.Fatalf("prefs = %+v", p)
	}
}

func TestRefreshJournalNeedsUpdater(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, &fakePublisher{})
	_, _ = svc.AddMessage(ctx, text(1, "x"))
	if _, err := svc.MergeJournal(ctx, 1, svc.Today()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := svc.RefreshJournal(ctx, 1, svc.Today()); !errors.Is(err, diary.ErrUpdateUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestAddMessageRejectsBlank(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, &fakePublisher{})

	for _, msg := range []diary.Message{
		{UserID: 1},
		{UserID: 1, Text: "  \n "},
		{UserID: 1, Images: []string{" "}},
	} {
		if _, err := svc.AddMessage(ctx, msg); !errors.Is(err, diary.ErrEmptyMessage) {
			t.Fatalf("AddMessage(%+v) err = %v", msg, err)
		}
	}
	if _, err := svc.AddMessage(ctx, diary.Message{UserID: 1, Images: []string{"/a.jpg"}}); err != nil {
		t.Fatalf("image-only message: %v", err)
	}
}

func TestMergeSkipsJournalWithoutContent(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, st, _ := newService(t, pub)
	day := svc.Today()

	j, _ := st.GetOrCreateJournal(ctx, 1, day)
	if _, err := st.AddEntry(ctx, diary.Entry{JournalID: j.ID, Source: "test", Content: "   "}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ref, err := svc.MergeJournal(ctx, 1, day)
	if err != nil || ref != "" {
		t.Fatalf("ref=%q err=%v", ref, err)
	}
	if pub.created() != 0 {
		t.Fatalf("empty document published")
	}
	got, _ := st.GetJournal(ctx, 1, day)
	if got.Merged() || got.MergeStartedAt != nil {
		t.Fatalf("journal = %+v", got)
	}
}
