package platform

import (
	"context"
	"log/slog"
)

// Safe wraps a Client so transport errors never propagate past the
// orchestrator. Failures are logged at debug level and reported as nil/false
// results; callers take a compensating path (typically re-post instead of
// edit).
type Safe struct {
	c   Client
	log *slog.Logger
}

// NewSafe wraps c. A nil logger falls back to slog.Default.
func NewSafe(c Client, log *slog.Logger) *Safe {
	if log == nil {
		log = slog.Default()
	}
	return &Safe{c: c, log: log}
}

// Client exposes the underlying client for the rare call site that needs
// the error value.
func (s *Safe) Client() Client { return s.c }

// Send posts a message; nil means the send failed.
func (s *Safe) Send(ctx context.Context, channelID uint64, content string, embed *Embed) *Message {
	msg, err := s.c.Send(ctx, channelID, content, embed)
	if err != nil {
		s.log.Debug("send failed", "channel", channelID, "err", err)
		return nil
	}
	return msg
}

// Edit edits a message; false means the caller should re-post.
func (s *Safe) Edit(ctx context.Context, ref Message, content string, embed *Embed) bool {
	if err := s.c.Edit(ctx, ref, content, embed); err != nil {
		s.log.Debug("edit failed", "channel", ref.ChannelID, "message", ref.MessageID, "err", err)
		return false
	}
	return true
}

// Delete removes a message; a failed delete is not retried.
func (s *Safe) Delete(ctx context.Context, ref Message) bool {
	if err := s.c.Delete(ctx, ref); err != nil {
		s.log.Debug("delete failed", "channel", ref.ChannelID, "message", ref.MessageID, "err", err)
		return false
	}
	return true
}

// MessageExists checks whether a previously posted message is still there.
func (s *Safe) MessageExists(ctx context.Context, channelID, messageID uint64) bool {
	if messageID == 0 {
		return false
	}
	msg, err := s.c.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		s.log.Debug("fetch failed", "channel", channelID, "message", messageID, "err", err)
		return false
	}
	return msg != nil
}

// CreateRole creates an ephemeral role; nil means failure.
func (s *Safe) CreateRole(ctx context.Context, guildID uint64, name string, mentionable bool, reason string) *Role {
	role, err := s.c.CreateRole(ctx, guildID, name, mentionable, reason)
	if err != nil {
		s.log.Debug("create role failed", "guild", guildID, "name", name, "err", err)
		return nil
	}
	return role
}

// DeleteRole removes a role.
func (s *Safe) DeleteRole(ctx context.Context, guildID, roleID uint64, reason string) bool {
	if err := s.c.DeleteRole(ctx, guildID, roleID, reason); err != nil {
		s.log.Debug("delete role failed", "guild", guildID, "role", roleID, "err", err)
		return false
	}
	return true
}

// AddRole assigns a role to a member.
func (s *Safe) AddRole(ctx context.Context, guildID, userID, roleID uint64) bool {
	if err := s.c.AddRole(ctx, guildID, userID, roleID); err != nil {
		s.log.Debug("add role failed", "guild", guildID, "user", userID, "role", roleID, "err", err)
		return false
	}
	return true
}

// RemoveRole removes a role from a member.
func (s *Safe) RemoveRole(ctx context.Context, guildID, userID, roleID uint64) bool {
	if err := s.c.RemoveRole(ctx, guildID, userID, roleID); err != nil {
		s.log.Debug("remove role failed", "guild", guildID, "user", userID, "role", roleID, "err", err)
		return false
	}
	return true
}
