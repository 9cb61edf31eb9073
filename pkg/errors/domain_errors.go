package errors

var (
	// Lifecycle errors — used by the ad/request engine
	ErrAdNotFound        = NotFound("ad not found")
	ErrRequestNotFound   = NotFound("request not found")
	ErrSelfRequest       = AlreadyExists("cannot request to join your own ad")
	ErrDuplicateRequest  = AlreadyExists("a request for this ad already exists")
	ErrCapacityExhausted = AlreadyExists("ad has no remaining capacity")
	ErrNotVerified       = FailedPrecondition("account is not verified")
	ErrInvalidCapacity   = InvalidArg("min must be at least 1 and not exceed max")
	ErrNoGroupForAd      = FailedPrecondition("ad has no associated group")

	// Messaging errors
	ErrGroupNotFound  = NotFound("group not found")
	ErrMemberNotFound = NotFound("group member not found")
	ErrNotGroupMember = Forbidden("not a member of this group")

	// Account errors
	ErrUserNotFound        = NotFound("user not found")
	ErrSubscriptionMissing = NotFound("no push subscription registered")
)

func ErrStorage(cause error) error {
	return Wrap(CodeInternal, "storage failure", cause)
}
