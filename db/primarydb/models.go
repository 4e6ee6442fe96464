package primarydb

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownCategory = errors.New("unknown category")
)

// OwnerRole is the team member role whose user is shown as a mod's author.
const OwnerRole = "Owner"

type Status int

const (
	StatusUnknown Status = iota
	StatusApproved
	StatusRejected
	StatusDraft
	StatusUnlisted
	StatusProcessing
)

var statusNames = map[Status]string{
	StatusApproved:   "approved",
	StatusRejected:   "rejected",
	StatusDraft:      "draft",
	StatusUnlisted:   "unlisted",
	StatusProcessing: "processing",
	StatusUnknown:    "unknown",
}

// AllStatuses is ordered by the id each status has in the statuses table.
var AllStatuses = []Status{StatusApproved, StatusRejected, StatusDraft, StatusUnlisted, StatusProcessing, StatusUnknown}

func ParseStatus(s string) Status {
	for status, name := range statusNames {
		if name == s {
			return status
		}
	}
	return StatusUnknown
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknown]
}

// IsSearchable reports whether mods in this status belong in the search index.
func (s Status) IsSearchable() bool {
	return s == StatusApproved
}

// IsHidden reports whether mods in this status are invisible to non-members.
// Unlisted mods are reachable by link but are not searchable.
func (s Status) IsHidden() bool {
	switch s {
	case StatusRejected, StatusDraft, StatusProcessing, StatusUnknown:
		return true
	}
	return false
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	status := ParseStatus(string(text))
	if status == StatusUnknown && string(text) != statusNames[StatusUnknown] {
		return fmt.Errorf("invalid status %q", string(text))
	}
	*s = status
	return nil
}

// Mod is one row of the mods table with its status name resolved.
type Mod struct {
	ID          ModID
	TeamID      int64
	Title       string
	Description string
	Downloads   int64
	Follows     int64
	IconURL     string
	Published   time.Time
	Updated     time.Time
	Status      Status
	Slug        string
	IsNSFW      bool
}

type Owner struct {
	ID       UserID
	Username string
}

type NewMod struct {
	ID          ModID
	TeamID      int64
	Title       string
	Description string
	IconURL     string
	Status      Status
	Slug        string
	IsNSFW      bool
	Categories  []string
	Published   time.Time
}

// ModUpdate carries the fields of an edit; nil fields are left untouched.
type ModUpdate struct {
	Title       *string
	Description *string
	Status      *Status
	Categories  []string
}

func (u ModUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.Categories == nil
}
