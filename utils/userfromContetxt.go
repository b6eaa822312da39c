package utils

import (
	"net/http"

	"carsucart/globals"
)

func GetUserIDFromRequest(r *http.Request) string {
	requestingUserID, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

// GetRolesFromRequest returns the roles the middleware stored for the caller.
func GetRolesFromRequest(r *http.Request) []string {
	roles, _ := r.Context().Value(globals.RoleKey).([]string)
	return roles
}

// HasRole reports whether the caller carries any of the given roles.
func HasRole(r *http.Request, want ...string) bool {
	for _, have := range GetRolesFromRequest(r) {
		for _, w := range want {
			if have == w {
				return true
			}
		}
	}
	return false
}
