package errors

import stderrors "errors"

func (d Definition) Error() string {
	return d.Message
}

// Is matches any Definition carrying the same code, so wrapped or re-worded
// copies still compare equal to the catalogue entry.
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// WithMessage returns a copy of d with a more specific message.
func (d Definition) WithMessage(msg string) Definition {
	d.Message = msg
	return d
}

// Definition is a business error code with its default message.
type Definition struct {
	Code    string
	Message string
}

// Request validation.
var (
	InvalidRequest          = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	MissingVisitID          = Definition{Code: "MISSING_VISIT_ID", Message: "Missing visitId"}
	InvalidVisitID          = Definition{Code: "INVALID_VISIT_ID", Message: "Invalid visitId format"}
	UnknownAction           = Definition{Code: "UNKNOWN_ACTION", Message: "Unknown action"}
	InvalidPushSubscription = Definition{Code: "INVALID_PUSH_SUBSCRIPTION", Message: "Invalid push subscription"}
	RateLimited             = Definition{Code: "RATE_LIMITED", Message: "Too many requests"}
)

// Visit records.
var (
	VisitNotFound = Definition{Code: "VISIT_NOT_FOUND", Message: "Visit not found"}
	SiteNotFound  = Definition{Code: "SITE_NOT_FOUND", Message: "Site not found"}
	StoreFailure  = Definition{Code: "STORE_FAILURE", Message: "Failed to update visit"}
)

// Push delivery.
var (
	NoPushSubscription      = Definition{Code: "NO_PUSH_SUBSCRIPTION", Message: "No push subscription for this visit"}
	PushSubscriptionExpired = Definition{Code: "PUSH_SUBSCRIPTION_EXPIRED", Message: "Push subscription expired"}
	PushNotConfigured       = Definition{Code: "PUSH_NOT_CONFIGURED", Message: "Push notifications not configured"}
	PushSendFailed          = Definition{Code: "PUSH_SEND_FAILED", Message: "Failed to send push notification"}
)

var InternalError = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}

// Lookup indexes the catalogue by code.
var Lookup = map[string]Definition{
	InvalidRequest.Code:          InvalidRequest,
	MissingVisitID.Code:          MissingVisitID,
	InvalidVisitID.Code:          InvalidVisitID,
	UnknownAction.Code:           UnknownAction,
	InvalidPushSubscription.Code: InvalidPushSubscription,
	RateLimited.Code:             RateLimited,
	VisitNotFound.Code:           VisitNotFound,
	SiteNotFound.Code:            SiteNotFound,
	StoreFailure.Code:            StoreFailure,
	NoPushSubscription.Code:      NoPushSubscription,
	PushSubscriptionExpired.Code: PushSubscriptionExpired,
	PushNotConfigured.Code:       PushNotConfigured,
	PushSendFailed.Code:          PushSendFailed,
	InternalError.Code:           InternalError,
}

// Get returns the Definition for code, or a generic one if unknown.
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// As extracts the Definition carried by err, if any.
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}

// SkipMessageError marks a queue message that should be acked without retry.
type SkipMessageError struct {
	Reason string
}

func (e SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

// IsSkip reports whether err asks the consumer to drop the message.
func IsSkip(err error) bool {
	var skip SkipMessageError
	return stderrors.As(err, &skip)
}
