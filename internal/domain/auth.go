package domain

// Identity is what the identity provider vouches for.
type Identity struct {
	Email string
	UID   string
}
