package resolver

import "regexp"

// _ipLiteral: four dot-separated groups of one to three digits,
// anchored at both ends. Octet range is not checked, so
// "999.999.999.999" still classifies as a literal.
var _ipLiteral = regexp.MustCompile(`(?i)^([0-9]{1,3}\.){3}[0-9]{1,3}$`)

// IsIPLiteral reports whether host is written as a dotted-quad IPv4
// literal rather than a name needing resolution. The check is purely
// syntactic; callers that need the bytes to be valid parse them
// separately.
func IsIPLiteral(host string) bool {
	return _ipLiteral.MatchString(host)
}
