package protocol

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the size limits declared on an inbound message struct.
func Validate(msg interface{}) error {
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("protocol: invalid payload: %w", err)
	}
	return nil
}
