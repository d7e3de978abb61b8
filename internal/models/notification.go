package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationKind is the "type" discriminator of a notification payload.
type NotificationKind string

const (
	KindComment        NotificationKind = "comment"
	KindCommentReply   NotificationKind = "comment_reply"
	KindReaction       NotificationKind = "reaction"
	KindFollow         NotificationKind = "follow"
	KindGuestbookEntry NotificationKind = "guestbook_entry"
	KindMention        NotificationKind = "mention"
)

// Actor is the user who caused a notification.
type Actor struct {
	ID          string `json:"id"`
	LoginName   string `json:"login_name"`
	DisplayName string `json:"display_name"`
}

// NotificationBase holds the fields shared by every notification.
type NotificationBase struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Actor     Actor      `json:"actor"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// Base returns the shared fields.
func (b NotificationBase) Base() NotificationBase { return b }

// Notification is the closed set of notification payloads. Only types in this
// package implement it; a type switch over the variants plus UnknownNotification
// covers every value DecodeNotification can return.
type Notification interface {
	Base() NotificationBase
	Kind() NotificationKind
	notification()
}

// CommentNotification is sent when someone comments on the user's post.
type CommentNotification struct {
	NotificationBase
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
	Excerpt   string `json:"excerpt"`
}

// CommentReplyNotification is sent when someone replies to the user's comment.
type CommentReplyNotification struct {
	NotificationBase
	PostID          string `json:"post_id"`
	CommentID       string `json:"comment_id"`
	ParentCommentID string `json:"parent_comment_id"`
	Excerpt         string `json:"excerpt"`
}

// ReactionNotification is sent when someone reacts to the user's post.
type ReactionNotification struct {
	NotificationBase
	PostID string `json:"post_id"`
	Emoji  string `json:"emoji"`
}

// FollowNotification is sent when someone follows the user.
type FollowNotification struct {
	NotificationBase
}

// GuestbookEntryNotification is sent when someone writes in the user's guestbook.
type GuestbookEntryNotification struct {
	NotificationBase
	EntryID string `json:"entry_id"`
	Excerpt string `json:"excerpt"`
}

// MentionNotification is sent when the user is mentioned in a post or comment.
type MentionNotification struct {
	NotificationBase
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id,omitempty"`
}

// UnknownNotification keeps a payload whose type this client does not know.
type UnknownNotification struct {
	NotificationBase
	Raw json.RawMessage `json:"-"`
}

func (CommentNotification) Kind() NotificationKind        { return KindComment }
func (CommentReplyNotification) Kind() NotificationKind   { return KindCommentReply }
func (ReactionNotification) Kind() NotificationKind       { return KindReaction }
func (FollowNotification) Kind() NotificationKind         { return KindFollow }
func (GuestbookEntryNotification) Kind() NotificationKind { return KindGuestbookEntry }
func (MentionNotification) Kind() NotificationKind        { return KindMention }
func (n UnknownNotification) Kind() NotificationKind      { return NotificationKind(n.Type) }

func (CommentNotification) notification()        {}
func (CommentReplyNotification) notification()   {}
func (ReactionNotification) notification()       {}
func (FollowNotification) notification()         {}
func (GuestbookEntryNotification) notification() {}
func (MentionNotification) notification()        {}
func (UnknownNotification) notification()        {}

// DecodeNotification decodes one payload into its variant. Unrecognized types
// yield UnknownNotification; only malformed JSON is an error.
func DecodeNotification(raw json.RawMessage) (Notification, error) {
	var base NotificationBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}

	var (
		target Notification
		err    error
	)

	switch NotificationKind(base.Type) {
	case KindComment:
		var n CommentNotification
		err = json.Unmarshal(raw, &n)
		target = n
	case KindCommentReply:
		var n CommentReplyNotification
		err = json.Unmarshal(raw, &n)
		target = n
	case KindReaction:
		var n ReactionNotification
		err = json.Unmarshal(raw, &n)
		target = n
	case KindFollow:
		var n FollowNotification
		err = json.Unmarshal(raw, &n)
		target = n
	case KindGuestbookEntry:
		var n GuestbookEntryNotification
		err = json.Unmarshal(raw, &n)
		target = n
	case KindMention:
		var n MentionNotification
		err = json.Unmarshal(raw, &n)
		target = n
	default:
		raw = append(json.RawMessage(nil), raw...)
		return UnknownNotification{NotificationBase: base, Raw: raw}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s notification: %w", base.Type, err)
	}

	return target, nil
}
