package kvcache

import (
	"crypto/sha256"
	"errors"

	"github.com/basakil/catalogd/internal/cache"
)

func sum(b []byte) [32]byte {
	return sha256.Sum256(b)
}

func asNegativeError(err error) (*cache.NegativeError, bool) {
	var neg *cache.NegativeError
	if errors.As(err, &neg) {
		return neg, true
	}
	return nil, false
}
