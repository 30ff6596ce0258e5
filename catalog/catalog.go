// Package catalog loads recipe catalogue documents: YAML files listing
// recipes with their operations and CCP criteria. Documents are checked
// against a JSON schema and against the recipe rules before anything is
// imported.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
	"github.com/ahmadzakiakmal/ccp-production/production"
)

// ErrInvalidDocument is returned for documents that fail the schema or the
// recipe rules.
var ErrInvalidDocument = errors.New("invalid recipe catalogue")

// Document is a parsed catalogue file.
type Document struct {
	Recipes []RecipeDoc `yaml:"recipes"`
}

// RecipeDoc is one recipe entry.
type RecipeDoc struct {
	ID            string         `yaml:"id"`
	Code          string         `yaml:"code"`
	Name          string         `yaml:"name"`
	Version       int            `yaml:"version"`
	Status        string         `yaml:"status"`
	BatchSize     float64        `yaml:"batch_size"`
	Unit          string         `yaml:"unit"`
	OutputItem    string         `yaml:"output_item"`
	ExpectedYield float64        `yaml:"expected_yield"`
	Operations    []OperationDoc `yaml:"operations"`
}

// OperationDoc is one routing step of a recipe entry.
type OperationDoc struct {
	Code      string         `yaml:"code"`
	Name      string         `yaml:"name"`
	Sequence  int            `yaml:"sequence"`
	IsCCP     bool           `yaml:"is_ccp"`
	Criterion *ccp.Criterion `yaml:"criterion"`
}

// Loader parses and validates catalogue documents.
type Loader struct {
	schema *jsonschema.Schema
}

// NewLoader compiles the catalogue schema.
func NewLoader() (*Loader, error) {
	schema, err := compileSchema(documentSchema)
	if err != nil {
		return nil, err
	}
	return &Loader{schema: schema}, nil
}

// LoadFile reads and parses a catalogue file.
func (l *Loader) LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue file: %w", err)
	}
	return l.Parse(data)
}

// Parse validates data against the schema and decodes it.
func (l *Loader) Parse(data []byte) (*Document, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidDocument, err)
	}
	value, err := toJSONValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := l.schema.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// ToRecipes converts the document into recipes and checks each one. Recipes
// without an id get <code>-v<version>, so re-importing a file replaces the
// same rows.
func (d *Document) ToRecipes() ([]*production.Recipe, error) {
	recipes := make([]*production.Recipe, 0, len(d.Recipes))
	ids := make(map[string]bool, len(d.Recipes))
	for _, rd := range d.Recipes {
		r := rd.recipe()
		if ids[r.ID] {
			return nil, fmt.Errorf("%w: recipe id %s appears twice", ErrInvalidDocument, r.ID)
		}
		ids[r.ID] = true
		if err := r.Check(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

func (rd RecipeDoc) recipe() *production.Recipe {
	id := strings.TrimSpace(rd.ID)
	if id == "" {
		id = fmt.Sprintf("%s-v%d", strings.ToLower(rd.Code), rd.Version)
	}
	r := &production.Recipe{
		ID:            id,
		Code:          rd.Code,
		Name:          rd.Name,
		Version:       rd.Version,
		Status:        production.RecipeStatus(rd.Status),
		BatchSize:     decimal.NewFromFloat(rd.BatchSize),
		Unit:          rd.Unit,
		OutputItem:    rd.OutputItem,
		ExpectedYield: decimal.NewFromFloat(rd.ExpectedYield),
	}
	for _, od := range rd.Operations {
		r.Operations = append(r.Operations, production.Operation{
			Code:      od.Code,
			Name:      od.Name,
			Sequence:  od.Sequence,
			IsCCP:     od.IsCCP,
			Criterion: od.Criterion.Clone(),
		})
	}
	return r
}

// Import saves every recipe of doc into store. Nothing is written unless
// the whole document is valid.
func Import(ctx context.Context, store production.Store, doc *Document, logger cmtlog.Logger) (int, error) {
	recipes, err := doc.ToRecipes()
	if err != nil {
		return 0, err
	}
	for i, r := range recipes {
		if err := store.SaveRecipe(ctx, r); err != nil {
			return i, fmt.Errorf("failed to save recipe %s: %w", r.Code, err)
		}
		logger.Info("Imported recipe", "code", r.Code, "version", r.Version, "status", r.Status, "operations", len(r.Operations))
	}
	return len(recipes), nil
}
