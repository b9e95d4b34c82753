package diary

import "regexp"

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{M}\p{N}_]+)`)

// ExtractTags returns the distinct hashtags in content in first-seen order.
// The reserved label is never returned; it is added at merge time.
func ExtractTags(content, reserved string) []string {
	matches := hashtagRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) < 2 {
			continue
		}
		out = append(out, m[1])
	}
	return normalizeTags(out, reserved)
}

// normalizeTags de-duplicates tags keeping first occurrence and drops the
// reserved label and empty values.
func normalizeTags(tags []string, reserved string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || t == reserved {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// documentLabels is the label set of a merged document: every entry tag in
// first-seen order followed by the reserved label exactly once.
func documentLabels(entries []Entry, reserved string) []string {
	var all []string
	for _, e := range entries {
		all = append(all, e.Tags...)
	}
	labels := normalizeTags(all, reserved)
	if reserved != "" {
		labels = append(labels, reserved)
	}
	return labels
}
