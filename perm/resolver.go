// Package perm computes effective permission sets for a (user, server,
// channel?) triple. The resolver is a pure function over its inputs: the
// same role/override data always yields the same output, and it performs no
// mutation of its own (callers own caching and invalidation).
package perm

import (
	"context"
	"sort"

	"github.com/ehrma/signalcore/models"
)

// RoleSource loads the roles assigned to a user within a server.
type RoleSource interface {
	GetRolesForUser(ctx context.Context, userID, serverID string) ([]models.Role, error)
}

// ChannelSource loads a single channel by id, used to walk the ancestor
// chain from root down to the target.
type ChannelSource interface {
	GetByID(ctx context.Context, channelID string) (*models.Channel, error)
}

// OverrideSource loads every override recorded against one channel.
type OverrideSource interface {
	GetForChannel(ctx context.Context, channelID string) ([]models.ChannelPermissionOverride, error)
}

// Resolver computes effective permissions. It holds no mutable state beyond
// its three data sources.
type Resolver struct {
	roles     RoleSource
	channels  ChannelSource
	overrides OverrideSource
}

func NewResolver(roles RoleSource, channels ChannelSource, overrides OverrideSource) *Resolver {
	return &Resolver{roles: roles, channels: channels, overrides: overrides}
}

// Resolve implements the algorithm: server-level priority merge, admin
// short-circuit, optional channel-tree override walk, then inherit→deny.
// channelID may be empty to resolve server-level-only permissions.
func (r *Resolver) Resolve(ctx context.Context, userID, serverID, channelID string) (models.PermissionSet, error) {
	roles, err := r.roles.GetRolesForUser(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return models.AllDeny(), nil
	}

	sortByPriorityDesc(roles)

	merged := make(map[models.PermissionKey]models.TriState, len(models.AllPermissionKeys))
	for _, key := range models.AllPermissionKeys {
		merged[key] = firstNonInherit(roles, key)
	}

	if merged[models.PermAdmin] == models.Allow {
		return models.AllAllow(), nil
	}

	if channelID == "" {
		return finalize(merged), nil
	}

	chain, err := r.ancestorChain(ctx, channelID)
	if err != nil {
		return nil, err
	}

	roleByID := make(map[string]models.Role, len(roles))
	for _, role := range roles {
		roleByID[role.ID] = role
	}

	for _, channel := range chain {
		overrides, err := r.overrides.GetForChannel(ctx, channel.ID)
		if err != nil {
			return nil, err
		}

		applicable := make([]models.ChannelPermissionOverride, 0, len(overrides))
		for _, o := range overrides {
			if _, assigned := roleByID[o.RoleID]; assigned {
				applicable = append(applicable, o)
			}
		}
		sort.SliceStable(applicable, func(i, j int) bool {
			ri := roleByID[applicable[i].RoleID]
			rj := roleByID[applicable[j].RoleID]
			if ri.Priority != rj.Priority {
				return ri.Priority > rj.Priority
			}
			return ri.ID < rj.ID
		})

		for _, o := range applicable {
			for _, key := range models.AllPermissionKeys {
				if v := o.Get(key); v != models.Inherit {
					merged[key] = v
				}
			}
		}
	}

	return finalize(merged), nil
}

// ancestorChain walks ParentID links from the target channel up to its root
// and returns them root-first, so overrides apply shallow-to-deep and the
// target channel's own overrides are applied last (and so win).
func (r *Resolver) ancestorChain(ctx context.Context, channelID string) ([]models.Channel, error) {
	var chain []models.Channel
	seen := make(map[string]bool)
	id := channelID
	for id != "" {
		if seen[id] {
			break // a cycle would otherwise loop forever; channels are invariant-protected against this
		}
		seen[id] = true
		channel, err := r.channels.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *channel)
		if channel.ParentID == nil {
			break
		}
		id = *channel.ParentID
	}
	// reverse into root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func sortByPriorityDesc(roles []models.Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Priority != roles[j].Priority {
			return roles[i].Priority > roles[j].Priority
		}
		return roles[i].ID < roles[j].ID
	})
}

// firstNonInherit scans roles, already sorted by priority descending, and
// returns the first explicit value for key, or Inherit if none set one.
func firstNonInherit(roles []models.Role, key models.PermissionKey) models.TriState {
	for _, role := range roles {
		if v := role.Get(key); v != models.Inherit {
			return v
		}
	}
	return models.Inherit
}

func finalize(m map[models.PermissionKey]models.TriState) models.PermissionSet {
	out := make(models.PermissionSet, len(m))
	for k, v := range m {
		if v == models.Inherit {
			v = models.Deny
		}
		out[k] = v
	}
	return out
}
