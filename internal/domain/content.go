package domain

import "time"

// ContentItem is one collected piece of short-video content. URL is the sole
// uniqueness key: a second sighting of the same URL refreshes the counters in
// place instead of inserting a duplicate. Items live in a shared space and are
// associated to the sources that surfaced them via a many-to-many link.
type ContentItem struct {
	ID            int64     `db:"id"`
	URL           string    `db:"url"`
	PublishedAt   time.Time `db:"published_at"`
	Views         int64     `db:"views"`
	Likes         int64     `db:"likes"`
	Comments      int64     `db:"comments"`
	AuthorHandle  string    `db:"author_handle"`
	AuthorName    string    `db:"author_name"`
	DurationSec   int       `db:"duration_sec"`
	Caption       string    `db:"caption"`
	FirstSeenAt   time.Time `db:"first_seen_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

// ContentDraft is the write-side input for a batch save. SourceID names the
// source that surfaced the item on this sighting.
type ContentDraft struct {
	SourceID     int64
	URL          string
	PublishedAt  time.Time
	Views        int64
	Likes        int64
	Comments     int64
	AuthorHandle string
	AuthorName   string
	DurationSec  int
	Caption      string
}

// ContentRecord is a raw collector result. Optional fields are pointers so a
// missing value can be told apart from a zero one; translation to a draft
// fills the gaps (publication time defaults to now, counters to zero).
type ContentRecord struct {
	URL          string
	PublishedAt  *time.Time
	Views        *int64
	Likes        *int64
	Comments     *int64
	AuthorHandle string
	AuthorName   string
	DurationSec  int
	Caption      string
}

// ContentFilter narrows a content listing; nil fields do not constrain.
type ContentFilter struct {
	SourceKind      *SourceKind
	SourceID        *int64
	MinViews        *int64
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
}

type ContentOrder string

const (
	// OrderPublished sorts by publication time descending, the default.
	OrderPublished ContentOrder = "published"
	// OrderViews sorts by view count descending.
	OrderViews ContentOrder = "views"
)

// Page bounds a listing. Limit <= 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}
