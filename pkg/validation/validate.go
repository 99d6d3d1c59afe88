// Package validation holds the request-level field rules shared by the
// HTTP handlers.
package validation

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxContentLen bounds a single message body.
	MaxContentLen = 256 * 1024
	// MaxTitleLen bounds a conversation title.
	MaxTitleLen = 512
)

var ErrEmptyContent = errors.New("content is required")

// ValidateContent checks a message body.
func ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxContentLen {
		return fmt.Errorf("content exceeds %d bytes", MaxContentLen)
	}
	if !utf8.ValidString(content) {
		return errors.New("content is not valid utf-8")
	}
	return nil
}

// ValidateTitle checks a conversation title. Empty titles are allowed;
// the server derives a placeholder slug.
func ValidateTitle(title string) error {
	if len(title) > MaxTitleLen {
		return fmt.Errorf("title exceeds %d bytes", MaxTitleLen)
	}
	if !utf8.ValidString(title) {
		return errors.New("title is not valid utf-8")
	}
	return nil
}
