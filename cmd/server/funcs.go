package main

import (
	"cinelog/internal/access"
	"cinelog/internal/models"
)

// Template wrappers around the access rules; templates pass values, not pointers.
func canEdit(u *models.User, c models.Comment) bool {
	return access.CanEditComment(u, &c)
}

func canDelete(u *models.User, c models.Comment) bool {
	return access.CanDeleteComment(u, &c)
}
