package services

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
)

// EntryInput is the parsed content of the create/edit form. Nil pointers mean "no value".
type EntryInput struct {
	When     time.Time
	Weight   *float64
	Energy   *int
	WaterML  *int
	Mood     *string
	Feelings *string
}

// FormError describes a form value that could not be accepted. Message is shown to the user.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string { return "invalid " + e.Field + ": " + e.Message }

// Is makes every FormError match ErrInvalidInput.
func (e *FormError) Is(target error) bool { return target == ErrInvalidInput }

// ParseEntryForm reads the entry fields through get (typically gin's PostForm).
// An empty date means today; empty numeric or text fields become nil.
func ParseEntryForm(get func(string) string, today time.Time) (EntryInput, error) {
	var in EntryInput

	when := strings.TrimSpace(get("when"))
	if when == "" {
		in.When = models.DateOnly(today)
	} else {
		d, err := time.Parse(config.DateLayout, when)
		if err != nil {
			return in, &FormError{Field: "when", Message: "Date must be in YYYY-MM-DD format."}
		}
		in.When = d
	}

	if v := strings.TrimSpace(get("weight")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return in, &FormError{Field: "weight", Message: "Weight must be a number."}
		}
		in.Weight = &f
	}
	var err error
	if in.Energy, err = optionalInt(get("energy"), "energy", "Energy"); err != nil {
		return in, err
	}
	if in.WaterML, err = optionalInt(get("water_ml"), "water_ml", "Water"); err != nil {
		return in, err
	}

	if v := get("mood"); v != "" {
		if utf8.RuneCountInString(v) > 32 {
			return in, &FormError{Field: "mood", Message: "Mood is limited to 32 characters."}
		}
		in.Mood = &v
	}
	if v := get("feelings"); v != "" {
		in.Feelings = &v
	}
	return in, nil
}

func optionalInt(raw, field, label string) (*int, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &FormError{Field: field, Message: label + " must be a whole number."}
	}
	return &n, nil
}
