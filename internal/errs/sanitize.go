package errs

import "regexp"

// RedactionMarker replaces any message that matched a sensitive pattern.
const RedactionMarker = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)token`),
	regexp.MustCompile(`(?i)\bkey\b`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)auth`),
	regexp.MustCompile(`(?i)credential`),
	regexp.MustCompile(`(?i)api[_-]?key`),
	regexp.MustCompile(`(?i)bearer`),
	regexp.MustCompile(`(?i)session`),
	regexp.MustCompile(`(?i)jwt`),
	regexp.MustCompile(`(?i)database.*connection`),
	regexp.MustCompile(`(?i)connection.*string`),
	regexp.MustCompile(`(?i)username.*password`),
	regexp.MustCompile(`(?i)postgres(ql)?://`),
}

var constraintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)duplicate.*key.*value`),
	regexp.MustCompile(`(?i)foreign.*key.*constraint`),
	regexp.MustCompile(`(?i)check.*constraint`),
	regexp.MustCompile(`(?i)not.*null.*violation`),
	regexp.MustCompile(`(?i)unique.*constraint`),
}

// Sanitized is the only form in which an error reaches a log line or a user.
type Sanitized struct {
	// Message is safe to emit; the raw text of a sensitive error never is.
	Message string
	// Kind is the classified type tag.
	Kind Kind
	// Sensitive marks the error for metrics; the raw text stays unexported.
	Sensitive bool
}

// Sanitize derives a loggable form of err. Messages matching a sensitive
// pattern are replaced wholesale by the redaction marker plus the kind tag;
// constraint texts are collapsed so schema details stay out of logs.
func Sanitize(err error) Sanitized {
	if err == nil {
		return Sanitized{Message: "unknown error", Kind: KindUnexpected}
	}
	kind := KindOf(err)
	msg := err.Error()

	// Constraint shapes are checked first: they contain the word "key" and
	// would otherwise be swallowed by the broader sensitive patterns.
	for _, p := range constraintPatterns {
		if p.MatchString(msg) {
			return Sanitized{
				Message: "database constraint violation",
				Kind:    kind,
			}
		}
	}
	for _, p := range sensitivePatterns {
		if p.MatchString(msg) {
			return Sanitized{
				Message:   RedactionMarker + " " + kind.String() + " error",
				Kind:      kind,
				Sensitive: true,
			}
		}
	}
	return Sanitized{Message: msg, Kind: kind}
}

// UserMessage is the fixed, user-safe display string for err's kind. Raw
// messages are never surfaced to users.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindUnauthenticated:
		return "Authentication required"
	case KindForbidden:
		return "Access denied"
	case KindNotFound:
		return "Not found"
	case KindValidation:
		return "Invalid input provided"
	case KindInsufficientCredits:
		return "Not enough credits available for this operation"
	case KindTransientStore:
		return "Service temporarily unavailable, please retry"
	case KindConstraint:
		return "Database operation failed"
	default:
		return "An unexpected error occurred. Please try again."
	}
}
