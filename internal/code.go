package internal

import (
	"github.com/google/orderedcode"
)

// EncodeKey maps a user key to its on-disk form. The encoding preserves
// byte-wise ordering and never produces an empty key, so engines that reject
// zero-length keys can still store the empty user key.
func EncodeKey(key []byte) []byte {
	buf, err := orderedcode.Append(make([]byte, 0, len(key)+2), string(key))
	if err != nil {
		// strings are always encodable
		panic(err)
	}
	return buf
}

// DecodeKey reverses EncodeKey.
func DecodeKey(encoded []byte) ([]byte, error) {
	var s string
	if _, err := orderedcode.Parse(string(encoded), &s); err != nil {
		return nil, err
	}
	return []byte(s), nil
}
