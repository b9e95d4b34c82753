package diary

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Document is what gets published for a merged journal.
type Document struct {
	Title  string
	Body   string
	Labels []string

	// Key identifies the merge attempt. Collaborators that can search their
	// documents use it to recognise one they already created.
	Key string
}

// RenderDocument builds the document for a day's entries. Entries must be in
// stored (creation) order; the output depends only on its arguments.
func RenderDocument(day Date, entries []Entry, prefs UserPreferences, loc *time.Location, reserved string) (Document, error) {
	body, err := renderBody(entries, prefs, loc)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Title:  day.Compact(),
		Body:   body,
		Labels: documentLabels(entries, reserved),
	}, nil
}

func renderBody(entries []Entry, prefs UserPreferences, loc *time.Location) (string, error) {
	var formatter *strftime.Strftime
	if prefs.ShowEntryTime {
		pattern := prefs.EntryTimeFormat
		if pattern == "" {
			pattern = DefaultEntryTimeFormat
		}
		f, err := strftime.New(pattern)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidPreference, PrefEntryTimeFormat, err)
		}
		formatter = f
	}
	if loc == nil {
		loc = time.UTC
	}

	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		text := strings.TrimSpace(e.Content)
		if text == "" && len(e.Images) == 0 {
			continue
		}

		var lines []string
		if formatter != nil {
			lines = append(lines, "**"+formatter.FormatString(e.CreatedAt.In(loc))+"**")
		}
		if text != "" {
			lines = append(lines, text)
		}
		for _, ref := range e.Images {
			lines = append(lines, fmt.Sprintf("![](%s)", ref))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// publishable reports whether any entry would render a block.
func publishable(entries []Entry) bool {
	for _, e := range entries {
		if strings.TrimSpace(e.Content) != "" || len(e.Images) > 0 {
			return true
		}
	}
	return false
}

// ValidateTimeFormat reports whether pattern is a usable strftime pattern.
func ValidateTimeFormat(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidPreference, PrefEntryTimeFormat)
	}
	if _, err := strftime.New(pattern); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPreference, PrefEntryTimeFormat, err)
	}
	return nil
}
