package contact

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Contact is one row from the contact list.
type Contact struct {
	Email     string
	Name      string
	Playlist  string
	Genres    string
	Instagram string
}

// Target is a single outreach destination handed to the dispatch loop.
// ID is the normalized identity (lower-cased, trimmed email address or
// account handle); the rest is display metadata used for templating and
// logging only.
type Target struct {
	ID       string
	Name     string
	Playlist string
	Genres   string
}

// NormalizeID canonicalizes a target identifier. Two identifiers that
// normalize equal refer to the same target.
func NormalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LoadCSV reads contacts from a plain header-mapped CSV file. Recognized
// headers (case-insensitive): email, name, playlist, genres, instagram.
// Unknown columns are ignored; rows without any recognized value are
// dropped.
func LoadCSV(path string) ([]Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contacts file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contacts file: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	// Map recognized headers to column indexes.
	idx := map[string]int{}
	for i, h := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var contacts []Contact
	for _, row := range records[1:] {
		c := Contact{
			Email:     field(row, "email"),
			Name:      field(row, "name"),
			Playlist:  field(row, "playlist"),
			Genres:    field(row, "genres"),
			Instagram: field(row, "instagram"),
		}
		if c.Email == "" && c.Instagram == "" {
			continue
		}
		contacts = append(contacts, c)
	}

	return contacts, nil
}

// MatchesGenres reports whether the contact's genre tags match any of the
// include keywords and none of the exclude keywords. An empty include list
// matches everything.
func MatchesGenres(c Contact, include, exclude []string) bool {
	genres := strings.ToLower(c.Genres)

	for _, excl := range exclude {
		if excl != "" && strings.Contains(genres, strings.ToLower(excl)) {
			return false
		}
	}

	if len(include) == 0 {
		return true
	}
	for _, kw := range include {
		if kw != "" && strings.Contains(genres, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// FilterGenres returns the contacts matching the include/exclude keyword
// lists, preserving input order.
func FilterGenres(contacts []Contact, include, exclude []string) []Contact {
	if len(include) == 0 && len(exclude) == 0 {
		return contacts
	}
	var out []Contact
	for _, c := range contacts {
		if MatchesGenres(c, include, exclude) {
			out = append(out, c)
		}
	}
	return out
}

// EmailTargets builds the ordered target list for an email campaign.
// Contacts without an email address are dropped; duplicate identities keep
// their first occurrence.
func EmailTargets(contacts []Contact) []Target {
	seen := make(map[string]bool)
	var targets []Target
	for _, c := range contacts {
		id := NormalizeID(c.Email)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, Target{
			ID:       id,
			Name:     c.Name,
			Playlist: c.Playlist,
			Genres:   c.Genres,
		})
	}
	return targets
}

// FollowTargets builds the ordered target list for a follow campaign from
// the contacts' Instagram fields.
func FollowTargets(contacts []Contact) []Target {
	seen := make(map[string]bool)
	var targets []Target
	for _, c := range contacts {
		handle := InstagramHandle(c.Instagram)
		id := NormalizeID(handle)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, Target{
			ID:       id,
			Name:     c.Name,
			Playlist: c.Playlist,
			Genres:   c.Genres,
		})
	}
	return targets
}

var (
	instagramURLPattern    = regexp.MustCompile(`(?i)instagram\.com/([^/?\s]+)`)
	instagramHandlePattern = regexp.MustCompile(`^@?([a-zA-Z0-9._]{1,30})$`)
)

// InstagramHandle extracts the account handle from an Instagram profile
// URL, an @-prefixed mention, or a bare username. Returns "" if no valid
// handle is present.
func InstagramHandle(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if m := instagramURLPattern.FindStringSubmatch(raw); m != nil {
		if instagramHandlePattern.MatchString(m[1]) {
			return strings.TrimPrefix(m[1], "@")
		}
		return ""
	}

	if strings.Contains(raw, "/") || strings.Contains(raw, " ") {
		return ""
	}
	if m := instagramHandlePattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}
