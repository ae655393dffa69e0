package session

// State is a position in the login state machine.
//
//	Unauthenticated -> LoggingIn -> Authenticated
//	                   LoggingIn -> ChallengePending -> Authenticated
//	                   LoggingIn | ChallengePending  -> Failed
//	Authenticated   -> Unauthenticated   (invalidated)
//	Failed          -> LoggingIn         (next caller tries again)
type State int

const (
	Unauthenticated State = iota
	LoggingIn
	ChallengePending
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case LoggingIn:
		return "logging_in"
	case ChallengePending:
		return "challenge_pending"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a login attempt ends in s.
func (s State) Terminal() bool {
	return s == Authenticated || s == Failed
}
