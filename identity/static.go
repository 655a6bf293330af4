package identity

// Static returns an identity made of the provided names only.
func Static(names ...string) Identity {
	return newIdentity(names...)
}
