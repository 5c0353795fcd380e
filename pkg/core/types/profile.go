package types

import "strings"

// StudentProfile is the persisted identity of the student. It is created at
// first run and read at every subsequent startup; its absence gates the chat
// behind onboarding.
type StudentProfile struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

// Complete reports whether both fields are filled in.
func (p StudentProfile) Complete() bool {
	return strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.PhoneNumber) != ""
}
