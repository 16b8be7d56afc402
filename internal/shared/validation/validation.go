package validation

import (
	"fmt"
	"time"

	"seatly/internal/shared/timeslot"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register installs the engine's custom binding validators on gin's
// validator instance. Call once at startup, before routes are mounted.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("slotdate", slotDate); err != nil {
		return fmt.Errorf("failed to register slotdate: %w", err)
	}
	if err := v.RegisterValidation("slottime", slotTime); err != nil {
		return fmt.Errorf("failed to register slottime: %w", err)
	}
	return nil
}

// slotDate accepts calendar dates in the canonical YYYY-MM-DD wire form.
func slotDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(timeslot.DateLayout, fl.Field().String())
	return err == nil
}

// slotTime accepts window boundaries as 24-hour HH:MM wall-clock times.
func slotTime(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}
