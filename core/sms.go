package core

// SMSService is any service that can deliver short text messages.
// Delivery is fire-and-forget: callers must not depend on it for correctness.
type SMSService interface {
	Send(to, body string)
}
