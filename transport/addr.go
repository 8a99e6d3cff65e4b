package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddr interprets an address spec into a network/address pair
// suitable for net.Dial, per the rules: a pure decimal integer names a
// TCP port on localhost; a string containing ":" is a TCP host:port; a
// string containing "/" is a Unix-domain stream socket path. Anything
// else is rejected.
func ParseAddr(spec string) (network, address string, err error) {
	if _, err := strconv.Atoi(spec); err == nil {
		return "tcp", "localhost:" + spec, nil
	}
	if strings.Contains(spec, ":") {
		return "tcp", spec, nil
	}
	if strings.Contains(spec, "/") {
		return "unix", spec, nil
	}
	return "", "", fmt.Errorf("transport: unrecognized address spec %q", spec)
}
