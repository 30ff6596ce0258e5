package production

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
)

// Recipe is one version of a bill of materials plus its routing. It is
// read-only to this package; work orders snapshot what they need from it.
type Recipe struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Version       int             `json:"version"`
	Status        RecipeStatus    `json:"status"`
	BatchSize     decimal.Decimal `json:"batch_size"`
	Unit          string          `json:"unit,omitempty"`
	OutputItem    string          `json:"output_item"`
	ExpectedYield decimal.Decimal `json:"expected_yield"`
	Operations    []Operation     `json:"operations"`
}

// Operation is one routing step. CCP operations carry the criterion their
// readings are judged against.
type Operation struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Sequence  int            `json:"sequence"`
	IsCCP     bool           `json:"is_ccp"`
	Criterion *ccp.Criterion `json:"criterion,omitempty"`
}

// Clone returns a deep copy of the operation.
func (o Operation) Clone() Operation {
	o.Criterion = o.Criterion.Clone()
	return o
}

// CheckCCP reports a configuration error when a CCP operation has no
// usable criterion.
func (o Operation) CheckCCP() error {
	if !o.IsCCP {
		return nil
	}
	if o.Criterion == nil {
		return fmt.Errorf("operation %s: %w: missing criterion", o.Code, ccp.ErrInvalidCriterion)
	}
	if err := o.Criterion.Validate(); err != nil {
		return fmt.Errorf("operation %s: %w", o.Code, err)
	}
	return nil
}

// Clone returns a deep copy of the recipe.
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	out := *r
	out.Operations = make([]Operation, len(r.Operations))
	for i, op := range r.Operations {
		out.Operations[i] = op.Clone()
	}
	return &out
}

// SortedOperations returns the operations ordered by sequence.
func (r *Recipe) SortedOperations() []Operation {
	ops := make([]Operation, len(r.Operations))
	for i, op := range r.Operations {
		ops[i] = op.Clone()
	}
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Sequence < ops[j].Sequence })
	return ops
}

// Check validates the recipe definition: identity fields, unique operation
// codes and sequences, and every CCP criterion.
func (r *Recipe) Check() error {
	if r.ID == "" || r.Code == "" || r.Name == "" {
		return fmt.Errorf("%w: recipe id, code and name are required", ErrValidation)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: recipe %s has unknown status %q", ErrValidation, r.Code, r.Status)
	}
	if len(r.Operations) == 0 {
		return fmt.Errorf("%w: recipe %s has no operations", ErrValidation, r.Code)
	}
	codes := make(map[string]bool, len(r.Operations))
	seqs := make(map[int]bool, len(r.Operations))
	for _, op := range r.Operations {
		if op.Code == "" {
			return fmt.Errorf("%w: recipe %s has an operation without a code", ErrValidation, r.Code)
		}
		if codes[op.Code] {
			return fmt.Errorf("%w: recipe %s repeats operation %s", ErrValidation, r.Code, op.Code)
		}
		if seqs[op.Sequence] {
			return fmt.Errorf("%w: recipe %s repeats sequence %d", ErrValidation, r.Code, op.Sequence)
		}
		codes[op.Code] = true
		seqs[op.Sequence] = true
		if err := op.CheckCCP(); err != nil {
			return fmt.Errorf("%w: recipe %s: %w", ErrRecipeConfig, r.Code, err)
		}
	}
	return nil
}

// CanProduce reports whether work orders may be created from the recipe:
// it must be ACTIVE, have operations, and carry a usable criterion on every
// CCP operation.
func (r *Recipe) CanProduce(op string) error {
	if r.Status != RecipeActive {
		return validationf(op, "recipe %s is %s, not %s", r.Code, r.Status, RecipeActive)
	}
	if len(r.Operations) == 0 {
		return validationf(op, "recipe %s has no operations", r.Code)
	}
	for _, o := range r.Operations {
		if err := o.CheckCCP(); err != nil {
			return &Error{Kind: ErrRecipeConfig, Op: op, Detail: "recipe " + r.Code, Err: err}
		}
	}
	return nil
}

// RecipeSummary is the list view of a recipe.
type RecipeSummary struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Version    int          `json:"version"`
	Status     RecipeStatus `json:"status"`
	OutputItem string       `json:"output_item"`
	CCPCount   int          `json:"ccp_count"`
}

// Summary returns the list view of r.
func (r *Recipe) Summary() RecipeSummary {
	n := 0
	for _, op := range r.Operations {
		if op.IsCCP {
			n++
		}
	}
	return RecipeSummary{
		ID:         r.ID,
		Code:       r.Code,
		Name:       r.Name,
		Version:    r.Version,
		Status:     r.Status,
		OutputItem: r.OutputItem,
		CCPCount:   n,
	}
}
