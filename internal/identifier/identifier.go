// Package identifier generates human readable server identifiers.
package identifier

import (
	"fmt"
	"regexp"

	"github.com/docker/docker/pkg/namesgenerator"
)

var validIdentifier = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)

// Generate returns a random "adjective_surname" identifier. It does not check
// for collisions with running instances.
func Generate() string {
	return namesgenerator.GetRandomName(0)
}

// Validate rejects identifiers that cannot form a container name or an
// unquoted SQL table prefix.
func Validate(id string) error {
	if !validIdentifier.MatchString(id) {
		return fmt.Errorf("invalid server identifier %q: it is also the database table prefix, so it must start with a letter or digit and contain only letters, digits and underscores", id)
	}
	return nil
}
