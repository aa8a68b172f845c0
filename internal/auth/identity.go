package auth

import "github.com/avess/gallery-bed/database/models"

// Identity is the verified caller passed into every service operation. The
// HTTP layer fills it from a parsed token; services never re-verify
// credentials but always re-check ownership against it.
type Identity struct {
	UserID   uint
	Username string
	Role     string
}

// CanAccess reports whether the identity may act on resources owned by
// ownerID: the owner themselves, or an admin.
func (id Identity) CanAccess(ownerID uint) bool {
	return id.UserID == ownerID || id.Role == models.RoleAdmin
}
