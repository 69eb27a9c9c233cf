package profile

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lifeline/internal/record"
)

//go:embed schema.cue
var schemaSource string

// Issue is one schema violation.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a profile.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		if is.Path == "" {
			parts[i] = is.Message
			continue
		}
		parts[i] = is.Path + ": " + is.Message
	}
	return "invalid profile: " + strings.Join(parts, "; ")
}

// Validator checks profiles against the embedded schema. Safe for
// concurrent use.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Profile"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Profile: %w", err)
	}
	return &Validator{ctx: ctx, schema: def}, nil
}

// Validate normalizes p and checks it. The normalized profile is returned
// even when validation fails.
func (v *Validator) Validate(p record.Profile) (record.Profile, error) {
	p = Normalize(p)

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.Encode(p)
	if err := val.Err(); err != nil {
		return p, fmt.Errorf("encode profile: %w", err)
	}
	unified := v.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return p, toValidationError(err)
	}
	return p, nil
}

func toValidationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Issues: []Issue{{Message: err.Error()}}}
	}
	seen := make(map[Issue]bool, len(errs))
	out := &ValidationError{}
	for _, e := range errs {
		format, args := e.Msg()
		is := Issue{
			Path:    strings.TrimPrefix(strings.Join(e.Path(), "."), "#Profile."),
			Message: fmt.Sprintf(format, args...),
		}
		if !seen[is] {
			seen[is] = true
			out.Issues = append(out.Issues, is)
		}
	}
	return out
}

// Normalize cleans list entries, upper-cases the blood type, and drops a
// blank emergency contact. Unknown blood types are left for the schema to
// reject.
func Normalize(p record.Profile) record.Profile {
	p.SubjectID = record.Clean(p.SubjectID)
	p.Name = record.Clean(p.Name)
	if bt, err := record.ParseBloodType(string(p.BloodType)); err == nil {
		p.BloodType = bt
	} else {
		p.BloodType = record.BloodType(record.Clean(string(p.BloodType)))
	}
	p.Allergies = record.NormalizeList(p.Allergies)
	p.Conditions = record.NormalizeList(p.Conditions)
	p.Medications = record.NormalizeList(p.Medications)
	if p.EmergencyContact != nil {
		c := record.EmergencyContact{
			Name:         record.Clean(p.EmergencyContact.Name),
			Phone:        record.Clean(p.EmergencyContact.Phone),
			Relationship: record.Clean(p.EmergencyContact.Relationship),
		}
		if c.IsZero() {
			p.EmergencyContact = nil
		} else {
			p.EmergencyContact = &c
		}
	}
	return p
}

// Parse decodes YAML and validates the result. Unknown keys are rejected.
func (v *Validator) Parse(data []byte) (record.Profile, error) {
	var p record.Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return record.Profile{}, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	return v.Validate(p)
}

// Load reads and validates a profile file.
func (v *Validator) Load(path string) (record.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return record.Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	return v.Parse(data)
}

// Marshal renders p as YAML.
func Marshal(p record.Profile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
