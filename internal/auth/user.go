// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

// Role names as provisioned by the remote endpoint.
const (
	// RoleAdmin can manage users, suppliers, and settings.
	RoleAdmin = "admin"

	// RoleManager can manage the catalog and view reports.
	RoleManager = "manager"

	// RoleCashier can record sales and look up products.
	RoleCashier = "cashier"
)

// User is the signed-in user's profile as returned by the remote
// authentication endpoint. It never carries the credential secret.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`

	// ForcePasswordChange requires the user to change credentials
	// before full access. Mirrored onto State at login.
	ForcePasswordChange bool `json:"force_password_change"`
}

// Label returns the name to attribute actions to: the display name when
// present, otherwise the username.
func (u User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
