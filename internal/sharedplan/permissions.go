package sharedplan

// Permissions is what a user may do on a plan.
type Permissions struct {
	CanView      bool `json:"canView"`
	CanEditTasks bool `json:"canEditTasks"`
	CanManage    bool `json:"canManage"`
	CanDelete    bool `json:"canDelete"`
}

// EffectiveRole derives userID's role on p. The owner field wins over any
// member entry, and a member entry claiming the owner role grants nothing.
func EffectiveRole(p *Plan, userID string) Role {
	if p == nil || userID == "" {
		return RoleNone
	}
	if p.OwnerID == userID {
		return RoleOwner
	}
	m, ok := p.Member(userID)
	if !ok {
		return RoleNone
	}
	switch m.Role {
	case RoleEditor, RoleViewer:
		return m.Role
	default:
		return RoleNone
	}
}

// PermissionsFor computes userID's permissions on p.
func PermissionsFor(p *Plan, userID string) Permissions {
	return permissionsOf(EffectiveRole(p, userID))
}

func permissionsOf(role Role) Permissions {
	switch role {
	case RoleOwner:
		return Permissions{CanView: true, CanEditTasks: true, CanManage: true, CanDelete: true}
	case RoleEditor:
		return Permissions{CanView: true, CanEditTasks: true, CanManage: true}
	case RoleViewer:
		return Permissions{CanView: true}
	default:
		return Permissions{}
	}
}

// Action names an operation checked by Can.
type Action string

const (
	ActionView      Action = "view"
	ActionEditTasks Action = "edit_tasks"
	ActionManage    Action = "manage"
	ActionDelete    Action = "delete"
	ActionChat      Action = "chat"
)

// Can reports whether userID may perform action on p.
func Can(p *Plan, userID string, action Action) bool {
	perms := PermissionsFor(p, userID)
	switch action {
	case ActionView, ActionChat:
		return perms.CanView
	case ActionEditTasks:
		return perms.CanEditTasks
	case ActionManage:
		return perms.CanManage
	case ActionDelete:
		return perms.CanDelete
	default:
		return false
	}
}
