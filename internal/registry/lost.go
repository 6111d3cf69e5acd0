package registry

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
)

// sqlStateRe matches the "{08S01}" diagnostic prefix the ODBC driver puts in
// its error text.
var sqlStateRe = regexp.MustCompile(`\{([0-9A-Z]{5})\}`)

// IsConnectionLost reports whether err means the session is no longer usable.
// Statement errors (syntax, unknown column, constraint) are not.
func (r *Registry) IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	for _, m := range sqlStateRe.FindAllStringSubmatch(err.Error(), -1) {
		if r.lostStates[strings.ToUpper(m[1])] {
			return true
		}
	}
	return false
}
