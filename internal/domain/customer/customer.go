package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
)

// ErrProfileNotFound is returned when a user has no profile row.
var ErrProfileNotFound = errors.New("profile not found")

const (
	// DefaultFirstName is shown when neither metadata nor profile carry a name.
	DefaultFirstName = "User"
	// DefaultRole is assumed when the profile does not set one.
	DefaultRole = "customer"
)

// Customer is the signed-in shopper as shown by the storefront.
type Customer struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// Profile is the profile row kept beside the identity.
type Profile struct {
	ID        string
	FirstName string
	LastName  string
	Role      string
}

// ProfileRepository looks up profiles by user id.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
}

// FromUser merges identity metadata with the profile. Metadata wins over the
// profile; profile may be nil.
func FromUser(u auth.User, profile *Profile) Customer {
	var p Profile
	if profile != nil {
		p = *profile
	}

	firstName := firstNonEmpty(u.Metadata.FirstName, p.FirstName, DefaultFirstName)
	lastName := firstNonEmpty(u.Metadata.LastName, p.LastName)

	return Customer{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   firstName,
		LastName:    lastName,
		DisplayName: strings.TrimSpace(firstName + " " + lastName),
		Role:        firstNonEmpty(p.Role, DefaultRole),
	}
}

// FullName is the name written on orders.
func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
