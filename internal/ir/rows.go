package ir

import "time"

// DraftRow is a mutable, pre-approval unit of generated content.
//
// Version increments once per generation pass over the row's scope and is
// left alone by field edits, which refine the current version.
type DraftRow struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Scope     Scope     `json:"scope"`
	Ordinal   int64     `json:"ordinal"`
	Payload   IRObject  `json:"payload"`
	Top       bool      `json:"top"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApprovedRecord is an immutable copy of a draft row. Its existence is the
// approval signal for its (stage, scope); re-approval replaces the whole set.
type ApprovedRecord struct {
	ID            string    `json:"id"`
	Stage         string    `json:"stage"`
	Scope         Scope     `json:"scope"`
	Ordinal       int64     `json:"ordinal"`
	Payload       IRObject  `json:"payload"`
	Top           bool      `json:"top"`
	SourceDraftID string    `json:"source_draft_id"`
	SourceVersion int64     `json:"source_version"`
	ApprovedAt    time.Time `json:"approved_at"`
}
