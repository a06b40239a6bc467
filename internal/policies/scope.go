package policies

import (
	"helpdesk-service/internal/models"
)

// departmentInScope reports whether the acting user may reach the target
// department under a *_department permission: their own department always,
// and for managers any descendant whose path extends theirs.
func departmentInScope(user *models.User, target *models.Department) bool {
	if user == nil || user.Department == nil || target == nil {
		return false
	}
	if user.Department.ID == target.ID {
		return true
	}
	if !user.IsManager {
		return false
	}
	return target.IsDescendantOf(user.Department)
}
