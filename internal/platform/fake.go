package platform

import (
	"context"
	"errors"
	"sync"
)

// Fake is an in-memory Client for tests. It records every call and can be
// told to fail specific operations.
type Fake struct {
	mu sync.Mutex

	nextMessageID uint64
	nextRoleID    uint64

	// Messages maps channel -> message id -> last body.
	Messages map[uint64]map[uint64]FakeMessage
	// RolesByGuild maps guild -> role id -> role.
	RolesByGuild map[uint64]map[uint64]Role
	// Assignments maps guild -> user -> set of role ids.
	Assignments map[uint64]map[uint64]map[uint64]struct{}

	FakeGuilds  []Guild
	FakeMembers map[uint64][]Member

	Sends, Edits, Deletes int

	FailSend   bool
	FailEdit   bool
	FailDelete bool
	NoIntent   bool
}

// FakeMessage is one recorded message body.
type FakeMessage struct {
	Content string
	Embed   *Embed
}

// NewFake returns an empty fake client.
func NewFake() *Fake {
	return &Fake{
		nextMessageID: 1000,
		nextRoleID:    5000,
		Messages:      make(map[uint64]map[uint64]FakeMessage),
		RolesByGuild:  make(map[uint64]map[uint64]Role),
		Assignments:   make(map[uint64]map[uint64]map[uint64]struct{}),
		FakeMembers:   make(map[uint64][]Member),
	}
}

func (f *Fake) Send(_ context.Context, channelID uint64, content string, embed *Embed) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend {
		return nil, errors.New("fake: send refused")
	}
	f.Sends++
	f.nextMessageID++
	id := f.nextMessageID
	if f.Messages[channelID] == nil {
		f.Messages[channelID] = make(map[uint64]FakeMessage)
	}
	f.Messages[channelID][id] = FakeMessage{Content: content, Embed: cloneEmbed(embed)}
	return &Message{ChannelID: channelID, MessageID: id}, nil
}

func (f *Fake) Edit(_ context.Context, ref Message, content string, embed *Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailEdit {
		return errors.New("fake: edit refused")
	}
	ch, ok := f.Messages[ref.ChannelID]
	if !ok {
		return errors.New("fake: unknown channel")
	}
	if _, ok := ch[ref.MessageID]; !ok {
		return errors.New("fake: unknown message")
	}
	f.Edits++
	ch[ref.MessageID] = FakeMessage{Content: content, Embed: cloneEmbed(embed)}
	return nil
}

func (f *Fake) Delete(_ context.Context, ref Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete {
		return errors.New("fake: delete refused")
	}
	ch, ok := f.Messages[ref.ChannelID]
	if !ok {
		return errors.New("fake: unknown channel")
	}
	if _, ok := ch[ref.MessageID]; !ok {
		return errors.New("fake: unknown message")
	}
	f.Deletes++
	delete(ch, ref.MessageID)
	return nil
}

func (f *Fake) FetchMessage(_ context.Context, channelID, messageID uint64) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Messages[channelID][messageID]; !ok {
		return nil, errors.New("fake: not found")
	}
	return &Message{ChannelID: channelID, MessageID: messageID}, nil
}

func (f *Fake) CreateRole(_ context.Context, guildID uint64, name string, _ bool, _ string) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRoleID++
	role := Role{ID: f.nextRoleID, Name: name}
	if f.RolesByGuild[guildID] == nil {
		f.RolesByGuild[guildID] = make(map[uint64]Role)
	}
	f.RolesByGuild[guildID][role.ID] = role
	return &role, nil
}

func (f *Fake) DeleteRole(_ context.Context, guildID, roleID uint64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.RolesByGuild[guildID][roleID]; !ok {
		return errors.New("fake: unknown role")
	}
	delete(f.RolesByGuild[guildID], roleID)
	for _, roles := range f.Assignments[guildID] {
		delete(roles, roleID)
	}
	return nil
}

func (f *Fake) AddRole(_ context.Context, guildID, userID, roleID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Assignments[guildID] == nil {
		f.Assignments[guildID] = make(map[uint64]map[uint64]struct{})
	}
	if f.Assignments[guildID][userID] == nil {
		f.Assignments[guildID][userID] = make(map[uint64]struct{})
	}
	f.Assignments[guildID][userID][roleID] = struct{}{}
	return nil
}

func (f *Fake) RemoveRole(_ context.Context, guildID, userID, roleID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Assignments[guildID][userID], roleID)
	return nil
}

func (f *Fake) Roles(_ context.Context, guildID uint64) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Role
	for _, r := range f.RolesByGuild[guildID] {
		out = append(out, r)
	}
	return out, nil
}

func (f *Fake) Guilds(_ context.Context) ([]Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Guild(nil), f.FakeGuilds...), nil
}

func (f *Fake) Members(_ context.Context, guildID uint64) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NoIntent {
		return nil, ErrMissingIntent
	}
	return append([]Member(nil), f.FakeMembers[guildID]...), nil
}

// SetFail toggles the failure switches under the fake's lock.
func (f *Fake) SetFail(send, edit, del bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailSend, f.FailEdit, f.FailDelete = send, edit, del
}

// Message returns one recorded message body.
func (f *Fake) Message(channelID, messageID uint64) (FakeMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Messages[channelID][messageID]
	return m, ok
}

// ChannelMessages snapshots every message in a channel.
func (f *Fake) ChannelMessages(channelID uint64) []FakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeMessage, 0, len(f.Messages[channelID]))
	for _, m := range f.Messages[channelID] {
		out = append(out, m)
	}
	return out
}

// LastMessage returns the newest message in a channel for assertions.
func (f *Fake) LastMessage(channelID uint64) (uint64, FakeMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bestID uint64
	var best FakeMessage
	for id, m := range f.Messages[channelID] {
		if id > bestID {
			bestID, best = id, m
		}
	}
	return bestID, best, bestID != 0
}

// Counts returns the send/edit/delete counters.
func (f *Fake) Counts() (sends, edits, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sends, f.Edits, f.Deletes
}

// MessageCount returns how many messages currently live in a channel.
func (f *Fake) MessageCount(channelID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Messages[channelID])
}

func cloneEmbed(e *Embed) *Embed {
	if e == nil {
		return nil
	}
	c := *e
	c.Fields = append([]EmbedField(nil), e.Fields...)
	return &c
}

var _ Client = (*Fake)(nil)
