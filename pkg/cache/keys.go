package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key joins parts with ':' into a namespaced key, e.g.
// Key("symbols", "binance", "spot") -> "symbols:binance:spot".
func Key(parts ...interface{}) string {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = fmt.Sprint(p)
	}
	return strings.Join(ss, ":")
}

// Hash shortens an arbitrary string, such as a serialized filter, into a
// fixed width key segment.
func Hash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:10])
}

// Under is the glob for every key in namespace.
func Under(namespace string) string {
	return namespace + ":*"
}
