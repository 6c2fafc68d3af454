package server

import (
	"regexp"
)

const maxIDLength = 128

// Evidence and case ids are opaque to the server. Anything that could
// escape a path segment or a log line is rejected.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

func validateID(id string) bool {
	return len(id) <= maxIDLength && idRegex.MatchString(id)
}
