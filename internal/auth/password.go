package auth

import "golang.org/x/crypto/bcrypt"

const dummyPassword = "pharmacy-auth-dummy"

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// NewDummyHash returns a hash at the same cost HashPassword uses for cost.
// Comparing against it when no account matches makes unknown emails as slow as wrong passwords.
func NewDummyHash(cost int) (string, error) {
	return HashPassword(dummyPassword, cost)
}
