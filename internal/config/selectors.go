package config

// Selectors holds the locator chains for the parts of the target
// application every scenario shares. Each entry is an ordered fallback
// chain; see dom.ParseLocator for the accepted syntax.
type Selectors struct {
	LoginMarker []string `yaml:"login_marker"`
	Email       []string `yaml:"email"`
	Password    []string `yaml:"password"`
	LoginSubmit []string `yaml:"login_submit"`
	Dashboard   []string `yaml:"dashboard"`

	OTPInput  []string `yaml:"otp_input"`
	OTPDigits string   `yaml:"otp_digits"` // CSS for split single-digit inputs
	OTPSubmit []string `yaml:"otp_submit"`
	OTPError  []string `yaml:"otp_error"`

	Next       []string `yaml:"next"`
	StepMarker []string `yaml:"step_marker"`
	Validation []string `yaml:"validation"` // CSS only

	UploadDone []string `yaml:"upload_done"`

	PaymentFrame   []string `yaml:"payment_frame"`
	PaymentSubmit  []string `yaml:"payment_submit"`
	PaymentSuccess []string `yaml:"payment_success"`

	ESignStart   []string `yaml:"esign_start"`
	ESignConfirm []string `yaml:"esign_confirm"`
	ESignDone    []string `yaml:"esign_done"`

	Summary []string `yaml:"summary"`

	Option       []string `yaml:"option"` // CSS for custom dropdown options
	TypeToFilter bool     `yaml:"type_to_filter"`
}

// DefaultSelectors returns chains that match common onboarding markup.
func DefaultSelectors() Selectors {
	return Selectors{
		LoginMarker: []string{"input[type=password]", "testid=login-form"},
		Email: []string{
			"testid=email-input",
			"input[type=email]",
			"input[name=email]",
			"label=Email",
		},
		Password: []string{
			"testid=password-input",
			"input[type=password]",
			"label=Password",
		},
		LoginSubmit: []string{
			"testid=login-button",
			"button[type=submit]",
			"text=Log in",
			"text=Sign in",
		},
		Dashboard: []string{"testid=dashboard", "nav [href*=dashboard]", "text=Dashboard"},

		OTPInput: []string{
			"testid=otp-input",
			"input[autocomplete=one-time-code]",
			"input[name*=otp]",
			"input[name*=code]",
		},
		OTPDigits: `input[maxlength="1"]`,
		OTPSubmit: []string{"testid=otp-submit", "text=Verify", "text=Confirm", "button[type=submit]"},
		OTPError:  []string{"testid=otp-error", "text=Invalid code", "[role=alert]"},

		Next: []string{
			"testid=next-button",
			"text=Next",
			"text=Continue",
			"text=Save and continue",
			"text=Proceed",
			"text=Submit",
		},
		Validation: []string{"[role=alert]", ".error", ".invalid-feedback", ".field-error"},

		UploadDone: []string{"testid=upload-complete", ".upload-success", "text=Uploaded"},

		PaymentSubmit:  []string{"testid=pay-button", "text=Pay", "text=Pay now", "button[type=submit]"},
		PaymentSuccess: []string{"testid=payment-success", "text=Payment successful", "text=Paid"},

		ESignStart:   []string{"testid=esign-button", "text=Sign", "text=E-sign"},
		ESignConfirm: []string{"testid=esign-confirm", "text=Confirm", "text=Sign document"},
		ESignDone:    []string{"testid=esign-done", "text=Signed"},

		Summary: []string{"testid=summary", ".summary", "main"},

		Option:       []string{"[role=option]", "li[class*=option]", "div[class*=option]"},
		TypeToFilter: true,
	}
}

// fillDefaults restores default chains the YAML left empty.
func (s *Selectors) fillDefaults() {
	d := DefaultSelectors()
	fill := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	fill(&s.LoginMarker, d.LoginMarker)
	fill(&s.Email, d.Email)
	fill(&s.Password, d.Password)
	fill(&s.LoginSubmit, d.LoginSubmit)
	fill(&s.Dashboard, d.Dashboard)
	fill(&s.OTPInput, d.OTPInput)
	fill(&s.OTPSubmit, d.OTPSubmit)
	fill(&s.OTPError, d.OTPError)
	fill(&s.Next, d.Next)
	fill(&s.Validation, d.Validation)
	fill(&s.UploadDone, d.UploadDone)
	fill(&s.PaymentSubmit, d.PaymentSubmit)
	fill(&s.PaymentSuccess, d.PaymentSuccess)
	fill(&s.ESignStart, d.ESignStart)
	fill(&s.ESignConfirm, d.ESignConfirm)
	fill(&s.ESignDone, d.ESignDone)
	fill(&s.Summary, d.Summary)
	fill(&s.Option, d.Option)
	if s.OTPDigits == "" {
		s.OTPDigits = d.OTPDigits
	}
}
