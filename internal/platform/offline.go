package platform

import (
	"context"
	"errors"
)

// ErrOffline is returned by every Offline operation that would reach the
// chat platform.
var ErrOffline = errors.New("gateway client not linked")

// Offline is the Client used when no gateway binding is compiled in. Every
// publish degrades through the safe wrappers; list operations come back
// empty so the workers idle instead of erroring.
type Offline struct{}

func (Offline) Send(context.Context, uint64, string, *Embed) (*Message, error) {
	return nil, ErrOffline
}
func (Offline) Edit(context.Context, Message, string, *Embed) error   { return ErrOffline }
func (Offline) Delete(context.Context, Message) error                 { return ErrOffline }
func (Offline) FetchMessage(context.Context, uint64, uint64) (*Message, error) {
	return nil, ErrOffline
}
func (Offline) CreateRole(context.Context, uint64, string, bool, string) (*Role, error) {
	return nil, ErrOffline
}
func (Offline) DeleteRole(context.Context, uint64, uint64, string) error { return ErrOffline }
func (Offline) AddRole(context.Context, uint64, uint64, uint64) error    { return ErrOffline }
func (Offline) RemoveRole(context.Context, uint64, uint64, uint64) error { return ErrOffline }
func (Offline) Roles(context.Context, uint64) ([]Role, error)            { return nil, nil }
func (Offline) Guilds(context.Context) ([]Guild, error)                  { return nil, nil }
func (Offline) Members(context.Context, uint64) ([]Member, error)        { return nil, nil }

var _ Client = Offline{}
