package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

// Password prompts for a masked secret without validating it.
func Password(label string) (string, error) {
	return run(promptui.Prompt{Label: label, Mask: '*'})
}

// NewPassword prompts twice for a password that satisfies the directory's
// length rules.
func NewPassword() (string, error) {
	password, err := run(promptui.Prompt{
		Label:    "Password",
		Mask:     '*',
		Validate: models.ValidatePassword,
	})
	if err != nil {
		return "", err
	}
	confirm, err := Password("Confirm password")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}
