package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateID returns a short url-safe identifier, used for task ids and
// request correlation.
func GenerateID() string {
	id, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		return ""
	}
	return id
}
