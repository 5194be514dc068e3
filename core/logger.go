package core

type (
	// Fields are structured key/value pairs attached to a log entry.
	Fields map[string]interface{}

	// Logger is what every component logs through.
	// args are free-form: errors, Fields or any value worth printing.
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}
)
