package json

import (
	"encoding/json"
	"reflect"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput is returned when the input does not match the schema.
var ErrInvalidInput = errors.New("invalid input: check the schema and try again")

var validate = validator.New()

// Encoder decodes tool arguments produced by a model into a typed request.
// The JSON is parsed leniently: values such as "37.7" are accepted for numbers.
type Encoder struct {
	schema *schema.Schema
}

// NewEncoder returns Encoder for the type of req.
func NewEncoder(req any) (*Encoder, error) {
	t := reflect.TypeOf(req)
	if t == nil {
		return nil, errors.New("encoder: request type is required")
	}
	schema, err := schema.New(t)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		schema: schema,
	}, nil
}

func (e *Encoder) Marshal(req any) ([]byte, error) {
	return json.Marshal(req)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(bs)
	if err := ljson.Unmarshal(data, ret); err != nil {
		return errors.Mark(errors.WithMessage(err, "unable to decode input"), ErrInvalidInput)
	}
	return nil
}

func (e *Encoder) Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		return errors.Mark(errors.WithMessage(err, "input validation failed"), ErrInvalidInput)
	}
	return nil
}

// Decode unmarshals and validates the input.
func (e *Encoder) Decode(bs []byte, ret any) error {
	if err := e.Unmarshal(bs, ret); err != nil {
		return err
	}
	return e.Validate(ret)
}

func (e *Encoder) Schema() *schema.Schema {
	return e.schema
}
