package formdef

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/claimwiz/internal/validate"
	"github.com/roach88/claimwiz/internal/wizard"
)

//go:embed schema.cue
var schemaSource string

//go:embed default.cue
var defaultSource []byte

// Step is one page of the wizard.
type Step struct {
	ID     string
	Title  string
	Fields []validate.Field
}

// Definition is a compiled wizard form.
type Definition struct {
	Name  string
	Steps []Step
}

// TotalSteps returns the number of steps.
func (d *Definition) TotalSteps() int {
	return len(d.Steps)
}

// Step returns the 1-based step n.
func (d *Definition) Step(n int) (Step, bool) {
	if n < 1 || n > len(d.Steps) {
		return Step{}, false
	}
	return d.Steps[n-1], true
}

// Fields returns every field of every step, in step order.
func (d *Definition) Fields() []validate.Field {
	var out []validate.Field
	for _, s := range d.Steps {
		out = append(out, s.Fields...)
	}
	return out
}

// Format applies the input mask of every known field to values.
func (d *Definition) Format(values map[string]string) map[string]string {
	return validate.FormatAll(d.Fields(), values)
}

// Gate validates the fields of one step with engine. Values are masked
// before validation, the same way input is masked as it is typed.
func (d *Definition) Gate(engine *validate.Engine) wizard.Gate {
	return wizard.GateFunc(func(step int, values map[string]string) validate.Report {
		s, ok := d.Step(step)
		if !ok {
			return validate.Report{}
		}
		return engine.ValidateForm(s.Fields, validate.FormatAll(s.Fields, values))
	})
}

// Default returns the built-in five-step tax-credit claim.
func Default() *Definition {
	def, err := Compile(defaultSource, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("built-in form definition: %v", err))
	}
	return def
}

// Load compiles the definition in the CUE file at path.
func Load(path string) (*Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load form definition: %w", err)
	}
	return Compile(src, path)
}

// Compile parses a CUE source holding a top-level `wizard` struct and checks
// it against the wizard schema.
//
//	wizard: {
//		name: "claim"
//		steps: [{id: "personal", title: "You", fields: [{name: "ssn", kind: "identifier", required: true}]}]
//	}
func Compile(src []byte, filename string) (*Definition, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	wv := v.LookupPath(cue.ParsePath("wizard"))
	if !wv.Exists() {
		return nil, &CompileError{
			Field:   "wizard",
			Message: "wizard is required",
			Pos:     v.Pos(),
		}
	}

	wv = schema.LookupPath(cue.ParsePath("#Wizard")).Unify(wv)
	if err := wv.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	return compileWizard(wv)
}

func compileWizard(v cue.Value) (*Definition, error) {
	def := &Definition{}

	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	def.Name = name

	iter, err := v.LookupPath(cue.ParsePath("steps")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	stepIDs := map[string]bool{}
	fieldNames := map[string]string{}
	for iter.Next() {
		sv := iter.Value()
		step, err := compileStep(sv)
		if err != nil {
			return nil, err
		}
		if stepIDs[step.ID] {
			return nil, &CompileError{
				Field:   "steps.id",
				Message: fmt.Sprintf("duplicate step id %q", step.ID),
				Pos:     sv.Pos(),
			}
		}
		stepIDs[step.ID] = true

		for _, f := range step.Fields {
			if other, dup := fieldNames[f.Name]; dup {
				return nil, &CompileError{
					Field:   fmt.Sprintf("steps.%s.fields", step.ID),
					Message: fmt.Sprintf("field %q already defined in step %q", f.Name, other),
					Pos:     sv.Pos(),
				}
			}
			fieldNames[f.Name] = step.ID
		}
		def.Steps = append(def.Steps, step)
	}

	return def, nil
}

func compileStep(v cue.Value) (Step, error) {
	var step Step
	var err error

	if step.ID, err = v.LookupPath(cue.ParsePath("id")).String(); err != nil {
		return step, formatCUEError(err)
	}
	if step.Title, err = v.LookupPath(cue.ParsePath("title")).String(); err != nil {
		return step, formatCUEError(err)
	}

	iter, err := v.LookupPath(cue.ParsePath("fields")).List()
	if err != nil {
		return step, formatCUEError(err)
	}
	for iter.Next() {
		f, err := compileField(iter.Value())
		if err != nil {
			return step, err
		}
		step.Fields = append(step.Fields, f)
	}
	return step, nil
}

func compileField(v cue.Value) (validate.Field, error) {
	var f validate.Field
	var err error

	if f.Name, err = v.LookupPath(cue.ParsePath("name")).String(); err != nil {
		return f, formatCUEError(err)
	}
	if f.Label, err = v.LookupPath(cue.ParsePath("label")).String(); err != nil {
		return f, formatCUEError(err)
	}
	if f.Required, err = v.LookupPath(cue.ParsePath("required")).Bool(); err != nil {
		return f, formatCUEError(err)
	}

	kind, err := v.LookupPath(cue.ParsePath("kind")).String()
	if err != nil {
		return f, formatCUEError(err)
	}
	if f.Kind, err = validate.ParseKind(kind); err != nil {
		return f, &CompileError{Field: f.Name + ".kind", Message: err.Error(), Pos: v.Pos()}
	}

	if ml := v.LookupPath(cue.ParsePath("min_length")); ml.Exists() {
		n, err := ml.Int64()
		if err != nil {
			return f, formatCUEError(err)
		}
		if f.Kind != validate.KindText {
			return f, &CompileError{
				Field:   f.Name + ".min_length",
				Message: "min_length applies to text fields only",
				Pos:     ml.Pos(),
			}
		}
		f.MinLength = int(n)
	}

	if opts := v.LookupPath(cue.ParsePath("options")); opts.Exists() {
		if f.Kind != validate.KindSelection {
			return f, &CompileError{
				Field:   f.Name + ".options",
				Message: "options apply to selection fields only",
				Pos:     opts.Pos(),
			}
		}
		oi, err := opts.List()
		if err != nil {
			return f, formatCUEError(err)
		}
		for oi.Next() {
			s, err := oi.Value().String()
			if err != nil {
				return f, formatCUEError(err)
			}
			f.Options = append(f.Options, s)
		}
	}
	return f, nil
}

// CompileError represents a definition error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
