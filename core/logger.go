package core

// Logger is any service that can log messages with additional context args.
// Expected args: error, map[string]interface{}, user objects; impls decide what
// to do with each.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
