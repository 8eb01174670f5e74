/*
 * Copyright 2025 Herdworks, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ValueKind discriminates the closed set of sensor value shapes.
type ValueKind int

const (
	ValueInvalid ValueKind = iota
	ValueScalar
	ValueVector
	ValueFields
)

// SensorValue is a closed tagged variant for sensor payloads: a scalar, an
// ordered vector of scalars, or a flat map of named scalars/vectors. The
// wire form is the naked scalar, array, or map; the shape is validated when
// decoding.
type SensorValue struct {
	kind   ValueKind
	scalar float64
	vector []float64
	fields map[string]SensorValue
}

// Scalar wraps a single numeric sample.
func Scalar(v float64) SensorValue {
	return SensorValue{kind: ValueScalar, scalar: v}
}

// Vector wraps an ordered list of numeric samples.
func Vector(v ...float64) SensorValue {
	return SensorValue{kind: ValueVector, vector: v}
}

// Fields wraps a flat map of named scalar or vector members. Nested field
// maps are not representable and are rejected at decode time.
func Fields(m map[string]SensorValue) SensorValue {
	return SensorValue{kind: ValueFields, fields: m}
}

// Kind reports the shape of the value.
func (v SensorValue) Kind() ValueKind { return v.kind }

// AsScalar returns the scalar member if the value is a scalar.
func (v SensorValue) AsScalar() (float64, bool) {
	return v.scalar, v.kind == ValueScalar
}

// AsVector returns the vector member if the value is a vector.
func (v SensorValue) AsVector() ([]float64, bool) {
	return v.vector, v.kind == ValueVector
}

// AsFields returns the field map if the value is a field map.
func (v SensorValue) AsFields() (map[string]SensorValue, bool) {
	return v.fields, v.kind == ValueFields
}

// wire returns the untagged representation used on the wire.
func (v SensorValue) wire() (interface{}, error) {
	switch v.kind {
	case ValueScalar:
		return v.scalar, nil
	case ValueVector:
		return v.vector, nil
	case ValueFields:
		out := make(map[string]interface{}, len(v.fields))

		for name, member := range v.fields {
			switch member.kind {
			case ValueScalar:
				out[name] = member.scalar
			case ValueVector:
				out[name] = member.vector
			default:
				return nil, fmt.Errorf("%w: field %q is not a scalar or vector", ErrInvalidValue, name)
			}
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: value is unset", ErrInvalidValue)
	}
}

// coerceValue builds a SensorValue from a decoded dynamic value, rejecting
// any shape outside the closed variant set.
func coerceValue(raw interface{}) (SensorValue, error) {
	if f, ok := asFloat(raw); ok {
		return Scalar(f), nil
	}

	switch typed := raw.(type) {
	case []interface{}:
		vec := make([]float64, 0, len(typed))

		for i, item := range typed {
			f, ok := asFloat(item)
			if !ok {
				return SensorValue{}, fmt.Errorf("%w: vector element %d is not numeric", ErrInvalidValue, i)
			}

			vec = append(vec, f)
		}

		return Vector(vec...), nil
	case map[string]interface{}:
		return coerceFields(typed)
	case map[interface{}]interface{}:
		named := make(map[string]interface{}, len(typed))

		for key, item := range typed {
			name, ok := key.(string)
			if !ok {
				return SensorValue{}, fmt.Errorf("%w: non-string field key %v", ErrInvalidValue, key)
			}

			named[name] = item
		}

		return coerceFields(named)
	default:
		return SensorValue{}, fmt.Errorf("%w: unsupported shape %T", ErrInvalidValue, raw)
	}
}

func coerceFields(raw map[string]interface{}) (SensorValue, error) {
	fields := make(map[string]SensorValue, len(raw))

	for name, item := range raw {
		member, err := coerceValue(item)
		if err != nil {
			return SensorValue{}, fmt.Errorf("field %q: %w", name, err)
		}

		if member.kind == ValueFields {
			return SensorValue{}, fmt.Errorf("%w: field %q nests a map", ErrInvalidValue, name)
		}

		fields[name] = member
	}

	return Fields(fields), nil
}

func asFloat(raw interface{}) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (v SensorValue) MarshalJSON() ([]byte, error) {
	wire, err := v.wire()
	if err != nil {
		return nil, err
	}

	return json.Marshal(wire)
}

func (v *SensorValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded, err := coerceValue(raw)
	if err != nil {
		return err
	}

	*v = decoded

	return nil
}

func (v SensorValue) MarshalCBOR() ([]byte, error) {
	wire, err := v.wire()
	if err != nil {
		return nil, err
	}

	return cbor.Marshal(wire)
}

func (v *SensorValue) UnmarshalCBOR(data []byte) error {
	var raw interface{}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded, err := coerceValue(raw)
	if err != nil {
		return err
	}

	*v = decoded

	return nil
}
