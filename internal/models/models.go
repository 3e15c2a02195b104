package models

import (
	"time"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"

	SourceLine = "line"
)

// Quantity is free text ("約10份", "3 boxes"). It is never parsed as a number.
type Quantity string

// Post is a near-expiry post. Item text is stored in Content.
type Post struct {
	PostID         string     `json:"id" db:"id"`
	Location       *string    `json:"location" db:"location"`
	Content        *string    `json:"content" db:"content"`
	Source         string     `json:"source" db:"source"`
	Status         string     `json:"status" db:"status"`
	ImageURL       *string    `json:"imageUrl" db:"image_url"`
	Quantity       *Quantity  `json:"quantity" db:"quantity"`
	Deadline       *string    `json:"deadline" db:"deadline"`
	Note           *string    `json:"note" db:"note"`
	ContentHash    string     `json:"-" db:"content_hash"`
	PostTokenHash  *string    `json:"-" db:"post_token_hash"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty" db:"token_expires_at"`
	LineUserID     string     `json:"lineUserId" db:"line_user_id"`
	PublishedAt    *time.Time `json:"publishedAt" db:"published_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}

// Fields returns the post's parsed-field view.
func (p *Post) Fields() ParsedFields {
	return ParsedFields{
		Location: p.Location,
		Item:     p.Content,
		Quantity: p.Quantity,
		Deadline: p.Deadline,
		Note:     p.Note,
	}
}

// SetFields copies f onto the post columns.
func (p *Post) SetFields(f ParsedFields) {
	p.Location = f.Location
	p.Content = f.Item
	p.Quantity = f.Quantity
	p.Deadline = f.Deadline
	p.Note = f.Note
}

// ParsedFields is the transient output of the content parser. Nil means absent.
type ParsedFields struct {
	Location *string   `json:"location,omitempty"`
	Item     *string   `json:"item,omitempty"`
	Quantity *Quantity `json:"quantity,omitempty"`
	Deadline *string   `json:"deadline,omitempty"`
	Note     *string   `json:"note,omitempty"`
}

// IsEmpty reports whether no field was recognized.
func (f ParsedFields) IsEmpty() bool {
	return f.Location == nil && f.Item == nil && f.Quantity == nil && f.Deadline == nil && f.Note == nil
}

// Merge overlays the non-nil fields of next onto f.
func (f ParsedFields) Merge(next ParsedFields) ParsedFields {
	if next.Location != nil {
		f.Location = next.Location
	}
	if next.Item != nil {
		f.Item = next.Item
	}
	if next.Quantity != nil {
		f.Quantity = next.Quantity
	}
	if next.Deadline != nil {
		f.Deadline = next.Deadline
	}
	if next.Note != nil {
		f.Note = next.Note
	}
	return f
}

// DraftPatch is applied by a compare-and-swap update on a draft.
// A nil TokenHash clears the token.
type DraftPatch struct {
	Fields         ParsedFields
	ContentHash    string
	TokenHash      *string
	TokenExpiresAt *time.Time
}

type LineUser struct {
	LineUserID  string     `json:"lineUserId" db:"line_user_id"`
	DisplayName string     `json:"displayName" db:"display_name"`
	Following   bool       `json:"following" db:"following"`
	FollowedAt  time.Time  `json:"followedAt" db:"followed_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	UnfollowAt  *time.Time `json:"unfollowedAt" db:"unfollowed_at"`
}

type WebhookEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	LineUserID  string    `db:"line_user_id"`
	ProcessedAt time.Time `db:"processed_at"`
}
