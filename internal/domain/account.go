package domain

import "time"

// User is an account owning tracked projects. ExternalID is the identity
// assigned by the messenger frontend and is unique across users.
type User struct {
	ID         int64     `db:"id"`
	ExternalID int64     `db:"external_id"`
	Username   string    `db:"username"`
	CreatedAt  time.Time `db:"created_at"`
}

// Project is a named collection scope belonging to one user. Projects are
// deactivated, never hard-deleted.
type Project struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Name      string    `db:"name"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// ProjectUpdate carries a partial project mutation; nil fields are left as is.
type ProjectUpdate struct {
	Name   *string
	Active *bool
}

type SourceKind string

const (
	SourceKindAccount SourceKind = "account"
	SourceKindHashtag SourceKind = "hashtag"
)

// Source is a tracked competitor account or hashtag within a project, the
// unit of one collection attempt.
type Source struct {
	ID        int64      `db:"id"`
	ProjectID int64      `db:"project_id"`
	Kind      SourceKind `db:"kind"`
	Locator   string     `db:"locator"`
	Active    bool       `db:"active"`
	Priority  int        `db:"priority"`
	LastRunAt *time.Time `db:"last_run_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// SourceUpdate carries a partial source mutation; nil fields are left as is.
type SourceUpdate struct {
	Locator  *string
	Active   *bool
	Priority *int
}
