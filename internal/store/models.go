package store

import "time"

// GORM models used for persistence. Integer surrogate keys come from the
// database sequence, which is the canonical ordering of messages.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Email        string    `gorm:"size:320;not null;uniqueIndex:idx_users_email"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type ConversationModel struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	UserID     int64      `gorm:"not null;index:idx_conversations_user_id"`
	User       *UserModel `gorm:"constraint:OnDelete:CASCADE"`
	Title      *string    `gorm:"size:255"`
	CreatedAt  time.Time  `gorm:"not null"`
	UpdatedAt  time.Time  `gorm:"not null;autoUpdateTime:false"`
	ArchivedAt *time.Time
}

func (ConversationModel) TableName() string { return "conversations" }

type MessageModel struct {
	ID             int64              `gorm:"primaryKey;autoIncrement"`
	ConversationID int64              `gorm:"not null;index:idx_messages_conversation_id"`
	Conversation   *ConversationModel `gorm:"constraint:OnDelete:CASCADE"`
	UserID         int64              `gorm:"not null;index:idx_messages_user_id"`
	User           *UserModel         `gorm:"constraint:OnDelete:CASCADE"`
	Role           string             `gorm:"size:16;not null"`
	Content        string             `gorm:"type:text;not null"`
	CreatedAt      time.Time          `gorm:"not null"`
}

func (MessageModel) TableName() string { return "messages" }

type AttachmentModel struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"`
	UserID       int64      `gorm:"not null;index:idx_attachments_user_id"`
	User         *UserModel `gorm:"constraint:OnDelete:CASCADE"`
	OriginalName string     `gorm:"size:512;not null"`
	StoredKey    string     `gorm:"size:512;not null;uniqueIndex:idx_attachments_stored_key"`
	MimeType     string     `gorm:"size:255;not null"`
	SizeBytes    int64      `gorm:"not null"`
	Extension    string     `gorm:"size:16;not null"`
	CreatedAt    time.Time  `gorm:"not null"`
}

func (AttachmentModel) TableName() string { return "attachments" }

// AttachmentLinkModel associates an attachment with at most one message.
type AttachmentLinkModel struct {
	ID           int64            `gorm:"primaryKey;autoIncrement"`
	MessageID    int64            `gorm:"not null;index:idx_attachment_links_message_id"`
	Message      *MessageModel    `gorm:"constraint:OnDelete:CASCADE"`
	AttachmentID int64            `gorm:"not null;uniqueIndex:idx_attachment_links_attachment_id"`
	Attachment   *AttachmentModel `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time        `gorm:"not null"`
}

func (AttachmentLinkModel) TableName() string { return "attachment_links" }
