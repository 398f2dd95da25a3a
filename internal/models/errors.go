package models

// FormatError reports an export that cannot be turned into budget lines.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Reason
}
