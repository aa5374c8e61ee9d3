package boards

// ResolveRole is the single role resolution rule: the recorded owner is OWNER, otherwise the
// member row's role applies, otherwise the user has no access.
func ResolveRole(board Board, userID string, member *Member) (Role, bool) {
	if userID == "" {
		return "", false
	}
	if board.OwnerUserID == userID {
		return RoleOwner, true
	}
	if member != nil && member.BoardID == board.ID && member.UserID == userID {
		if role, ok := ParseRole(string(member.Role)); ok && role != RoleOwner {
			return role, true
		}
	}
	return "", false
}
