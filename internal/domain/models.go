package domain

import (
	"time"
)

// ReplyLink is the denormalized snapshot of the message being replied to, so
// a reply renders without fetching its target.
type ReplyLink struct {
	MessageID string `json:"message_id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
}

// Message is the normalized message used above the store boundary.
//
// ID, Channel, Username, Content and CreatedAt never change after creation;
// only Reported and ReportCount mutate.
type Message struct {
	ID          string     `json:"id"`
	Channel     string     `json:"channel"`
	Username    string     `json:"username"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
	Reported    bool       `json:"reported"`
	ReportCount int        `json:"report_count"`
	ReplyTo     *ReplyLink `json:"reply_to,omitempty"`

	// AuthorID is the partition's anonymous subject; never rendered.
	AuthorID string `json:"-"`
}

// MessageDoc is the persisted document shape of the "messages" collection.
// Optional fields are nullable; FromDoc applies the defaulting rules.
//
// The two composite indexes back the history query (channel, created_at desc)
// and the live tail query (channel, created_at asc).
type MessageDoc struct {
	ID               string    `gorm:"type:char(36);primaryKey"`
	Channel          string    `gorm:"type:varchar(48);not null;index:idx_messages_history,priority:1;index:idx_messages_live,priority:1"`
	CreatedAt        time.Time `gorm:"not null;index:idx_messages_history,priority:2,sort:desc;index:idx_messages_live,priority:2"`
	Content          string    `gorm:"type:text;not null"`
	Username         string    `gorm:"type:varchar(64);not null"`
	Reported         *bool
	ReportCount      *int
	ReplyToMessageID *string `gorm:"column:reply_to_message_id;type:char(36)"`
	ReplyToContent   *string `gorm:"column:reply_to_content;type:text"`
	ReplyToUsername  *string `gorm:"column:reply_to_username;type:varchar(64)"`
	AuthorID         string  `gorm:"type:varchar(64);not null;default:''"`
}

// TableName returns the collection name.
func (MessageDoc) TableName() string { return "messages" }

// Index names used by the store to verify its configuration.
const (
	IndexHistory = "idx_messages_history"
	IndexLive    = "idx_messages_live"
)

// FromDoc maps a stored document to a Message, defaulting absent optional
// fields: no reply link unless a target id is present, report count never
// negative, reported false when null.
func FromDoc(d MessageDoc) Message {
	m := Message{
		ID:        d.ID,
		Channel:   d.Channel,
		Username:  d.Username,
		Content:   d.Content,
		CreatedAt: d.CreatedAt.UTC(),
		AuthorID:  d.AuthorID,
	}
	if d.Reported != nil {
		m.Reported = *d.Reported
	}
	if d.ReportCount != nil && *d.ReportCount > 0 {
		m.ReportCount = *d.ReportCount
	}
	if d.ReplyToMessageID != nil && *d.ReplyToMessageID != "" {
		link := &ReplyLink{MessageID: *d.ReplyToMessageID}
		if d.ReplyToUsername != nil {
			link.Username = *d.ReplyToUsername
		}
		if d.ReplyToContent != nil {
			link.Content = *d.ReplyToContent
		}
		m.ReplyTo = link
	}
	return m
}

// ToDoc maps a Message to its stored document. Report fields are always
// written explicitly so atomic increments never start from NULL.
func ToDoc(m Message) MessageDoc {
	reported := m.Reported
	count := m.ReportCount
	d := MessageDoc{
		ID:          m.ID,
		Channel:     m.Channel,
		CreatedAt:   m.CreatedAt,
		Content:     m.Content,
		Username:    m.Username,
		Reported:    &reported,
		ReportCount: &count,
		AuthorID:    m.AuthorID,
	}
	if m.ReplyTo != nil && m.ReplyTo.MessageID != "" {
		id, user, body := m.ReplyTo.MessageID, m.ReplyTo.Username, m.ReplyTo.Content
		d.ReplyToMessageID = &id
		d.ReplyToUsername = &user
		d.ReplyToContent = &body
	}
	return d
}

// AnonIdentity is an anonymous subject issued by a partition's identity
// provider.
type AnonIdentity struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for AnonIdentity.
func (AnonIdentity) TableName() string { return "anon_identities" }

// NameReservation holds a display name claimed by a session. Key is the
// case-folded name.
type NameReservation struct {
	Key       string    `gorm:"column:name_key;type:varchar(96);primaryKey"`
	Name      string    `gorm:"type:varchar(64);not null"`
	SessionID string    `gorm:"type:varchar(64);not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for NameReservation.
func (NameReservation) TableName() string { return "name_reservations" }
