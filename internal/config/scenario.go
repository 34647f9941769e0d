package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Step kinds understood by the flow runner.
const (
	StepLogin     = "login"
	StepOTP       = "otp"
	StepNavigate  = "navigate"
	StepClick     = "click"
	StepForm      = "form"
	StepDocuments = "documents"
	StepPayment   = "payment"
	StepESign     = "esign"
	StepSummary   = "summary"
	StepPause     = "pause"
)

// Field kinds understood by form and payment steps.
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldDropdown = "dropdown"
	FieldDate     = "date"
	FieldCheckbox = "checkbox"
	FieldRadio    = "radio"
)

// DateInputLayout is the layout scenario date values are written in.
const DateInputLayout = "2006-01-02"

// Scenario is one end-to-end VR flow.
type Scenario struct {
	Description string     `yaml:"description"`
	Steps       []StepSpec `yaml:"steps"`
}

// StepSpec describes one step of a scenario. Which fields apply depends
// on Kind.
type StepSpec struct {
	Kind     string `yaml:"kind"`
	Name     string `yaml:"name,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`

	// navigate
	Path string `yaml:"path,omitempty"`

	// click
	Selectors      []string `yaml:"selectors,omitempty"`
	WaitTransition bool     `yaml:"wait_transition,omitempty"`

	// form
	Fields []FieldSpec `yaml:"fields,omitempty"`
	Next   []string    `yaml:"next,omitempty"`
	// NoAdvance keeps a form step from clicking the next button.
	NoAdvance bool `yaml:"no_advance,omitempty"`

	// documents
	Files   []DocumentSpec `yaml:"files,omitempty"`
	Advance bool           `yaml:"advance,omitempty"`

	// payment
	Payment *PaymentSpec `yaml:"payment,omitempty"`

	// pause
	Reason string `yaml:"reason,omitempty"`
}

// FieldSpec describes a single form input.
type FieldSpec struct {
	Label     string   `yaml:"label"`
	Kind      string   `yaml:"kind"`
	Selectors []string `yaml:"selectors"`
	Value     string   `yaml:"value"`
	Optional  bool     `yaml:"optional,omitempty"`
	// Layout is the display format for date fields; the value itself is
	// always written as DateInputLayout.
	Layout string `yaml:"layout,omitempty"`
}

// DocumentSpec describes one file to upload.
type DocumentSpec struct {
	Name      string   `yaml:"name"`
	Selectors []string `yaml:"selectors"`
	Path      string   `yaml:"path"`
	Done      []string `yaml:"done,omitempty"`
}

// PaymentSpec describes the card form. Frame, when set, locates the
// iframe hosting the card fields. A payment without fields (saved card,
// invoice) only submits and waits for the success marker.
type PaymentSpec struct {
	Frame   []string    `yaml:"frame,omitempty"`
	Fields  []FieldSpec `yaml:"fields"`
	Submit  []string    `yaml:"submit,omitempty"`
	Success []string    `yaml:"success,omitempty"`
}

// DisplayName returns Name or Kind.
func (s StepSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind
}

func (sc Scenario) validate() error {
	if len(sc.Steps) == 0 {
		return errors.New("no steps")
	}
	var errs []error
	for i, st := range sc.Steps {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i+1, st.DisplayName(), err))
		}
	}
	return errors.Join(errs...)
}

func (s StepSpec) validate() error {
	switch s.Kind {
	case StepLogin, StepOTP, StepESign, StepSummary, StepPause:
		return nil
	case StepNavigate:
		if s.Path == "" {
			return errors.New("navigate needs a path")
		}
	case StepClick:
		if len(s.Selectors) == 0 {
			return errors.New("click needs selectors")
		}
	case StepForm:
		if len(s.Fields) == 0 {
			return errors.New("form needs fields")
		}
		return validateFields(s.Fields)
	case StepDocuments:
		if len(s.Files) == 0 {
			return errors.New("documents needs files")
		}
		for _, f := range s.Files {
			if len(f.Selectors) == 0 {
				return fmt.Errorf("document %q has no selectors", f.Name)
			}
			if f.Path == "" {
				return fmt.Errorf("document %q has no path", f.Name)
			}
		}
	case StepPayment:
		if s.Payment != nil {
			return validateFields(s.Payment.Fields)
		}
	case "":
		return errors.New("missing kind")
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	return nil
}

func validateFields(fields []FieldSpec) error {
	for _, f := range fields {
		if len(f.Selectors) == 0 {
			return fmt.Errorf("field %q has no selectors", f.Label)
		}
		switch f.Kind {
		case FieldText, FieldTextarea, FieldDropdown, FieldCheckbox, FieldRadio:
		case FieldDate:
			if _, err := time.Parse(DateInputLayout, f.Value); err != nil {
				return fmt.Errorf("field %q: date value must be YYYY-MM-DD: %w", f.Label, err)
			}
		default:
			return fmt.Errorf("field %q: unknown kind %q", f.Label, f.Kind)
		}
	}
	return nil
}

// expandScenarioEnv substitutes ${NAME} references in field values and
// document paths.
func (c *Config) expandScenarioEnv() {
	for name, sc := range c.Scenarios {
		for i := range sc.Steps {
			st := &sc.Steps[i]
			expandFields(st.Fields)
			if st.Payment != nil {
				expandFields(st.Payment.Fields)
			}
			for j := range st.Files {
				st.Files[j].Path = os.ExpandEnv(st.Files[j].Path)
			}
		}
		c.Scenarios[name] = sc
	}
}

func expandFields(fields []FieldSpec) {
	for i := range fields {
		fields[i].Value = os.ExpandEnv(fields[i].Value)
	}
}
