// Package prompt wraps promptui for the interactive dbroker commands.
package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user presses Ctrl+C or Ctrl+D.
var ErrAborted = errors.New("aborted")

var errRequired = errors.New("value is required")

// IsAborted reports whether err means the user aborted a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) ||
		errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

func run(p promptui.Prompt) (string, error) {
	result, err := p.Run()
	return result, wrapError(err)
}

// Input prompts for text, offering defaultValue.
func Input(label, defaultValue string) (string, error) {
	return run(promptui.Prompt{Label: label, Default: defaultValue})
}

// InputRequired prompts until the user enters something.
func InputRequired(label string) (string, error) {
	return run(promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if input == "" {
				return errRequired
			}
			return nil
		},
	})
}

// Select asks the user to pick one of items and returns it.
func Select(label string, items []string) (string, error) {
	s := promptui.Select{Label: label, Items: items, HideSelected: true}
	_, result, err := s.Run()
	return result, wrapError(err)
}
