package pkg

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateEntryID returns a time-ordered id, so lexical order follows insertion order.
func GenerateEntryID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate entry id: %w", err)
	}

	return id.String(), nil
}

func GenerateGameID() string {
	return uuid.NewString()
}

func GenerateUserID() string {
	return uuid.NewString()
}

func GenerateTokenID() string {
	return uuid.NewString()
}
