package store

import "errors"

// sentinels that abort a transaction without being reported to callers
var (
	errNotHolder = errors.New("lease not held by caller")
	errNotLinked = errors.New("account not linked")
)
