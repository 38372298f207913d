package operation

import "github.com/tnqbao/gau-site-director/entity"

// CanClear reports whether user may discard op. Superusers always can;
// anyone else only after a failure the failed action marks as recoverable.
func CanClear(op *entity.Operation, user *entity.User) bool {
	if op == nil || user == nil {
		return false
	}
	if user.IsSuperuser {
		return true
	}
	return op.UserCanClear()
}
