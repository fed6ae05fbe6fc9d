package caldav

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

var validate = validator.New()

// ClientOptions configures Connect/NewClient. BaseURL must be absolute;
// non-https schemes are rejected unless AllowInsecure is set.
type ClientOptions struct {
	BaseURL       string `validate:"required,url"`
	Username      string
	Password      string
	BearerToken   string
	AllowInsecure bool

	// Registerer receives the caldav_requests_total/caldav_request_duration_seconds
	// collectors. Nil (the default) means the collectors are not registered
	// anywhere, so nothing is exported, since a library must not force a
	// global-registry side effect on every caller.
	Registerer prometheus.Registerer
}

// CreateCalendarOptions carries the optional properties sent with
// MKCALENDAR. Color, if set, must be #RRGGBB or #RRGGBBAA.
type CreateCalendarOptions struct {
	Description         string
	Color               string `validate:"omitempty,hexcolor|caldavcolor"`
	Timezone            string
	SupportedComponents []string
}

// UpdateCalendarOptions carries only the fields to PROPPATCH; nil/empty
// fields are left untouched server-side.
type UpdateCalendarOptions struct {
	DisplayName string
	Description string
	Color       string `validate:"omitempty,hexcolor|caldavcolor"`
	Timezone    string
}

func init() {
	// #RRGGBBAA: validator's built-in hexcolor only accepts #RGB/#RRGGBB,
	// so the Apple-style alpha-channel form used by calendar-color needs its
	// own rule.
	_ = validate.RegisterValidation("caldavcolor", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 9 || s[0] != '#' {
			return false
		}
		for _, c := range s[1:] {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
		return true
	})
}

func validateStruct(op string, v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return &ProtocolError{Op: op, Err: fmt.Errorf("invalid options: %w", err)}
	}
	return nil
}
