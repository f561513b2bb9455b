package perm

import (
	"context"
	"testing"

	"github.com/ehrma/signalcore/models"
)

type fakeRoles struct {
	byUser map[string][]models.Role
}

func (f *fakeRoles) GetRolesForUser(_ context.Context, userID, _ string) ([]models.Role, error) {
	return f.byUser[userID], nil
}

type fakeChannels struct {
	byID map[string]*models.Channel
}

func (f *fakeChannels) GetByID(_ context.Context, id string) (*models.Channel, error) {
	return f.byID[id], nil
}

type fakeOverrides struct {
	byChannel map[string][]models.ChannelPermissionOverride
}

func (f *fakeOverrides) GetForChannel(_ context.Context, channelID string) ([]models.ChannelPermissionOverride, error) {
	return f.byChannel[channelID], nil
}

func strPtr(s string) *string { return &s }

// TestScenarioS3PermissionEscalationViaOverride implements spec scenario S3.
func TestScenarioS3PermissionEscalationViaOverride(t *testing.T) {
	memberRole := models.Role{
		ID:       "role-member",
		ServerID: "srv",
		Priority: 1,
		Permissions: map[models.PermissionKey]models.TriState{
			models.PermSpeak: models.Allow,
			models.PermJoin:  models.Allow,
		},
	}

	roles := &fakeRoles{byUser: map[string][]models.Role{
		"bob": {memberRole},
	}}
	channels := &fakeChannels{byID: map[string]*models.Channel{
		"announcements": {ID: "announcements", ServerID: "srv"},
		"general":       {ID: "general", ServerID: "srv"},
	}}
	overrides := &fakeOverrides{byChannel: map[string][]models.ChannelPermissionOverride{
		"announcements": {
			{
				ChannelID:   "announcements",
				RoleID:      "role-member",
				Permissions: map[models.PermissionKey]models.TriState{models.PermSpeak: models.Deny},
			},
		},
	}}

	r := NewResolver(roles, channels, overrides)

	got, err := r.Resolve(context.Background(), "bob", "srv", "announcements")
	if err != nil {
		t.Fatal(err)
	}
	if got[models.PermSpeak] != models.Deny {
		t.Fatalf("expected speak=deny in Announcements, got %s", got[models.PermSpeak])
	}

	got, err = r.Resolve(context.Background(), "bob", "srv", "general")
	if err != nil {
		t.Fatal(err)
	}
	if got[models.PermSpeak] != models.Allow {
		t.Fatalf("expected speak=allow in General, got %s", got[models.PermSpeak])
	}
}

// TestAdminShortCircuitIsMonotone implements invariant 3.
func TestAdminShortCircuitIsMonotone(t *testing.T) {
	roles := &fakeRoles{byUser: map[string][]models.Role{
		"alice": {
			{ID: "r1", Priority: 1, Permissions: map[models.PermissionKey]models.TriState{models.PermKick: models.Deny}},
			{ID: "r2", Priority: 2, Permissions: map[models.PermissionKey]models.TriState{models.PermAdmin: models.Allow}},
		},
	}}
	channels := &fakeChannels{byID: map[string]*models.Channel{}}
	overrides := &fakeOverrides{byChannel: map[string][]models.ChannelPermissionOverride{}}

	r := NewResolver(roles, channels, overrides)
	got, err := r.Resolve(context.Background(), "alice", "srv", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range models.AllPermissionKeys {
		if got[key] != models.Allow {
			t.Fatalf("expected every key allowed under admin short-circuit, %s was %s", key, got[key])
		}
	}
}

// TestResolveIsIdempotent implements invariant 4.
func TestResolveIsIdempotent(t *testing.T) {
	roles := &fakeRoles{byUser: map[string][]models.Role{
		"alice": {{ID: "r1", Priority: 1, Permissions: map[models.PermissionKey]models.TriState{models.PermJoin: models.Allow}}},
	}}
	channels := &fakeChannels{byID: map[string]*models.Channel{}}
	overrides := &fakeOverrides{byChannel: map[string][]models.ChannelPermissionOverride{}}

	r := NewResolver(roles, channels, overrides)
	first, err := r.Resolve(context.Background(), "alice", "srv", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(context.Background(), "alice", "srv", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range models.AllPermissionKeys {
		if first[key] != second[key] {
			t.Fatalf("expected identical resolution across calls, %s differed", key)
		}
	}
}

func TestNoRolesResolvesAllDeny(t *testing.T) {
	roles := &fakeRoles{byUser: map[string][]models.Role{}}
	channels := &fakeChannels{byID: map[string]*models.Channel{}}
	overrides := &fakeOverrides{byChannel: map[string][]models.ChannelPermissionOverride{}}

	r := NewResolver(roles, channels, overrides)
	got, err := r.Resolve(context.Background(), "ghost", "srv", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range models.AllPermissionKeys {
		if got[key] != models.Deny {
			t.Fatalf("expected all-deny with no roles, %s was %s", key, got[key])
		}
	}
}
