package settings

// Resolve returns the first non-zero value among call, instance and global.
// Use it for values where the zero value means "not set", such as strings.
func Resolve[T comparable](call, instance, global T) T {
	var zero T
	if call != zero {
		return call
	}
	if instance != zero {
		return instance
	}
	return global
}

// Pick returns the first non-nil override, falling back to global.
// Use it when the zero value is a legitimate override (false, 0).
func Pick[T any](call, instance *T, global T) T {
	if call != nil {
		return *call
	}
	if instance != nil {
		return *instance
	}
	return global
}

// Ptr returns a pointer to v. Handy for building overrides inline.
func Ptr[T any](v T) *T {
	return &v
}
