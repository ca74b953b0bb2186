package content

const invalidContentPrefix = "AI generated invalid JSON content: "

// InvalidContentError is returned when the model output cannot be used as a
// lesson. Preview holds the start of the cleaned text for logs.
type InvalidContentError struct {
	Reason  string
	Preview string
	Err     error
}

func (e *InvalidContentError) Error() string {
	return invalidContentPrefix + e.Reason
}

func (e *InvalidContentError) Unwrap() error { return e.Err }

func invalid(reason string, cleaned string, err error) *InvalidContentError {
	return &InvalidContentError{Reason: reason, Preview: preview(cleaned, 200), Err: err}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
