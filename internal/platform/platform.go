// Package platform defines the capability surface the engine consumes from
// the chat-platform client, plus safe wrappers that convert transport
// failures into boolean results. The real gateway client lives outside this
// module; tests use the in-memory Fake.
package platform

import (
	"context"
	"errors"
)

// ErrMissingIntent is returned by Members when the gateway connection lacks
// the members intent. Callers degrade gracefully.
var ErrMissingIntent = errors.New("members intent not enabled")

// EmbedField is one name/value pair of an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is the platform-agnostic rich message body.
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
	Footer      string
	Color       int
}

// Message references a posted message.
type Message struct {
	ChannelID uint64
	MessageID uint64
}

// Role is an ephemeral per-slot role.
type Role struct {
	ID   uint64
	Name string
}

// Member is a guild member as seen through the gateway cache.
type Member struct {
	UserID      uint64
	DisplayName string
}

// Guild is a tenant as seen through the gateway.
type Guild struct {
	ID   uint64
	Name string
}

// Client is the capability set the engine needs from the chat platform.
// Implementations must be safe for concurrent use.
type Client interface {
	Send(ctx context.Context, channelID uint64, content string, embed *Embed) (*Message, error)
	Edit(ctx context.Context, ref Message, content string, embed *Embed) error
	Delete(ctx context.Context, ref Message) error
	FetchMessage(ctx context.Context, channelID, messageID uint64) (*Message, error)

	CreateRole(ctx context.Context, guildID uint64, name string, mentionable bool, reason string) (*Role, error)
	DeleteRole(ctx context.Context, guildID, roleID uint64, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID uint64) error
	RemoveRole(ctx context.Context, guildID, userID, roleID uint64) error
	Roles(ctx context.Context, guildID uint64) ([]Role, error)

	Guilds(ctx context.Context) ([]Guild, error)
	Members(ctx context.Context, guildID uint64) ([]Member, error)
}

// Interactions holds the acknowledgement primitives for inbound requests.
type Interactions interface {
	Defer(ctx context.Context, interactionID string) error
	Respond(ctx context.Context, interactionID, content string, ephemeral bool) error
	Followup(ctx context.Context, interactionID, content string) error
	EditOriginal(ctx context.Context, interactionID, content string, embed *Embed) error
}
