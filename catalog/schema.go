package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// documentSchema describes a recipe catalogue file.
const documentSchema = `
$schema: "http://json-schema.org/draft-07/schema#"
type: object
required: [recipes]
additionalProperties: false
properties:
  recipes:
    type: array
    minItems: 1
    items:
      $ref: "#/definitions/recipe"

definitions:
  recipe:
    type: object
    required: [code, name, version, status, batch_size, output_item, operations]
    additionalProperties: false
    properties:
      id:
        type: string
        minLength: 1
      code:
        type: string
        pattern: "^[A-Z0-9][A-Z0-9_-]*$"
      name:
        type: string
        minLength: 1
      version:
        type: integer
        minimum: 1
      status:
        enum: [DRAFT, ACTIVE, OBSOLETE]
      batch_size:
        type: number
        exclusiveMinimum: 0
      unit:
        type: string
      output_item:
        type: string
        minLength: 1
      expected_yield:
        type: number
        minimum: 0
      operations:
        type: array
        minItems: 1
        items:
          $ref: "#/definitions/operation"

  operation:
    type: object
    required: [code, name, sequence]
    additionalProperties: false
    properties:
      code:
        type: string
        minLength: 1
      name:
        type: string
        minLength: 1
      sequence:
        type: integer
        minimum: 1
      is_ccp:
        type: boolean
      criterion:
        $ref: "#/definitions/criterion"
    if:
      properties:
        is_ccp:
          const: true
      required: [is_ccp]
    then:
      required: [criterion]

  criterion:
    type: object
    required: [type]
    additionalProperties: false
    properties:
      type:
        enum: [TEMPERATURE, TIME, TEMP_TIME]
      min_temp:
        type: number
      holding_time:
        type: integer
        minimum: 0
      notes:
        type: string
    allOf:
      - if:
          properties:
            type:
              enum: [TEMPERATURE, TEMP_TIME]
        then:
          required: [min_temp]
      - if:
          properties:
            type:
              enum: [TIME, TEMP_TIME]
        then:
          required: [holding_time]
`

// compileSchema parses the YAML schema and compiles it.
func compileSchema(src string) (*jsonschema.Schema, error) {
	var schemaData interface{}
	if err := yaml.Unmarshal([]byte(src), &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	// Convert to JSON for schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schema, err := jsonschema.CompileString("recipe-catalog.schema.json", string(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// toJSONValue re-decodes a YAML tree through encoding/json so the validator
// sees the same types it would for a JSON document.
func toJSONValue(doc interface{}) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
