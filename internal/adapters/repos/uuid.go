package repos

import "github.com/google/uuid"

// newObjectID issues time ordered identities so documents of one
// collection sort by insertion without an extra column.
func newObjectID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func validObjectID(id string) bool {
	return uuid.Validate(id) == nil
}
