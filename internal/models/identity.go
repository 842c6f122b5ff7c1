package models

// Role is the authenticated role of a caller.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleWaiter Role = "waiter"
	RoleClient Role = "client"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleWaiter, RoleClient:
		return true
	}
	return false
}

// SenderType is the display label stored on messages.
type SenderType string

const (
	SenderClient SenderType = "Client"
	SenderWaiter SenderType = "Waiter"
	SenderAdmin  SenderType = "Admin"
)

// SenderTypeForRole maps a caller role to its message label.
func SenderTypeForRole(r Role) SenderType {
	switch r {
	case RoleClient:
		return SenderClient
	case RoleWaiter:
		return SenderWaiter
	default:
		return SenderAdmin
	}
}

// Identity is the result of authenticating a credential.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsStaff reports whether the identity belongs to the staff side (waiter or admin).
func (i Identity) IsStaff() bool {
	return i.Role == RoleWaiter || i.Role == RoleAdmin
}

// StaffRoom is shared by every waiter and admin connection.
const StaffRoom = "staff"

// ClientRoom names the private room of one client.
func ClientRoom(clientID string) string {
	return "client-" + clientID
}

// RoomForIdentity returns the single room a connection joins at connect time.
func RoomForIdentity(i Identity) string {
	if i.Role == RoleClient {
		return ClientRoom(i.ID)
	}
	return StaffRoom
}
