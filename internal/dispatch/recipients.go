package dispatch

import (
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/rules"
)

func usersByID(users []model.User) map[int64]model.User {
	m := make(map[int64]model.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return m
}

// recipients resolves the users a notification goes to. Recipients set on
// the tenant's rule setting win. Otherwise the direct ids (assignee, seller)
// and every user holding one of roles are used. Admins are the fallback so
// no alert is dropped for lack of a target. Only active users are returned.
func recipients(scope Scope, direct []*int64, roles ...model.Role) []int64 {
	users := usersByID(scope.Users)
	var out []int64
	seen := make(map[int64]bool)
	add := func(id int64) {
		if u, ok := users[id]; ok && u.Active && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	if len(scope.Setting.Recipients) > 0 {
		for _, id := range scope.Setting.Recipients {
			add(id)
		}
		if len(out) > 0 {
			return out
		}
	}

	for _, id := range direct {
		if id != nil {
			add(*id)
		}
	}
	for _, u := range scope.Users {
		for _, r := range roles {
			if u.Role == r {
				add(u.ID)
			}
		}
	}
	if len(out) == 0 {
		for _, u := range scope.Users {
			if u.Role == model.RoleAdmin {
				add(u.ID)
			}
		}
	}
	return out
}

// escalationRoles widens the audience as the level rises.
func escalationRoles(level rules.EscalationLevel) []model.Role {
	switch level {
	case rules.EscalationCritical:
		return []model.Role{model.RoleSupervisor, model.RoleManager}
	case rules.EscalationHigh:
		return []model.Role{model.RoleSupervisor}
	default:
		return nil
	}
}

// escalationRecipients notifies the assignee, falling back to supervisors
// when a warning-level work order has nobody assigned.
func escalationRecipients(scope Scope, f rules.SLAEscalationFacts) []int64 {
	roles := escalationRoles(f.Level)
	if f.AssignedTo == nil && len(roles) == 0 {
		roles = []model.Role{model.RoleSupervisor}
	}
	return recipients(scope, []*int64{f.AssignedTo}, roles...)
}

// sellerOrManagers targets the customer's seller, or managers when the
// customer has none.
func sellerOrManagers(scope Scope, seller *int64) []int64 {
	if seller != nil {
		if u, ok := usersByID(scope.Users)[*seller]; ok && u.Active {
			return recipients(scope, []*int64{seller})
		}
	}
	return recipients(scope, nil, model.RoleManager)
}
