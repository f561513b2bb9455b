package models

// Role is server-scoped. Permissions is a tri-state map — a key absent from
// the map is treated the same as Inherit.
//
// At most one role per server has IsDefault set; the default role is
// assigned to every member automatically and can never be deleted.
type Role struct {
	ID          string                   `json:"id"`
	ServerID    string                   `json:"serverId"`
	Name        string                   `json:"name"`
	Priority    int                      `json:"priority"`
	Color       string                   `json:"color"`
	Permissions map[PermissionKey]TriState `json:"permissions"`
	IsDefault   bool                     `json:"isDefault"`
	Description *string                  `json:"description,omitempty"`
}

// Get returns the role's stance on key, defaulting to Inherit when the key
// is not present in Permissions.
func (r *Role) Get(key PermissionKey) TriState {
	if r.Permissions == nil {
		return Inherit
	}
	if v, ok := r.Permissions[key]; ok {
		return v
	}
	return Inherit
}

// ChannelPermissionOverride narrows or widens a role's permissions within
// one channel. Permissions holds only the keys the override actually
// states; unset keys are inherited from the server-level merge.
type ChannelPermissionOverride struct {
	ChannelID   string                     `json:"channelId"`
	RoleID      string                     `json:"roleId"`
	Permissions map[PermissionKey]TriState `json:"permissions"`
}

func (o *ChannelPermissionOverride) Get(key PermissionKey) TriState {
	if v, ok := o.Permissions[key]; ok {
		return v
	}
	return Inherit
}
