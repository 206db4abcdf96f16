// Package access holds every role and ownership rule in one place, so that
// handlers and services ask the same question the same way.
package access

import "cinelog/internal/models"

type Capability uint

const (
	// CommentAny allows deleting comments written by others.
	CommentAny Capability = 1 << iota
	ManageMovies
	ImportMovies
	ListUsers
	AssignRoles
	DeleteUsers
)

var roleCapabilities = map[models.Role]Capability{
	models.RoleUser:      0,
	models.RoleModerator: CommentAny | ManageMovies | ImportMovies | ListUsers | AssignRoles,
	models.RoleAdmin:     CommentAny | ManageMovies | ImportMovies | ListUsers | AssignRoles | DeleteUsers,
}

// Capabilities returns the set granted to a user; anonymous and inactive users get none.
func Capabilities(u *models.User) Capability {
	if u == nil || !u.IsActive {
		return 0
	}
	return roleCapabilities[u.Role]
}

func Has(u *models.User, c Capability) bool {
	return Capabilities(u)&c == c
}

// CanEditComment: only the author rewrites a comment.
func CanEditComment(u *models.User, c *models.Comment) bool {
	return u != nil && c != nil && u.ID == c.AuthorID
}

func CanDeleteComment(u *models.User, c *models.Comment) bool {
	if u == nil || c == nil {
		return false
	}
	return u.ID == c.AuthorID || Has(u, CommentAny)
}

// CanAssignRole checks the actor side of a role change. Nobody may promote
// themselves to admin.
func CanAssignRole(actor, target *models.User, role models.Role) bool {
	if !Has(actor, AssignRoles) || target == nil {
		return false
	}
	if role == models.RoleAdmin && actor.ID == target.ID {
		return false
	}
	return true
}

// CanDeleteUser: admins only, never themselves.
func CanDeleteUser(actor, target *models.User) bool {
	return Has(actor, DeleteUsers) && target != nil && actor.ID != target.ID
}
