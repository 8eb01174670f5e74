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

// Package codec encodes typed messages to their wire form: CBOR maps keyed
// by field name, with JSON as the interchange fallback at system boundaries.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrDecode marks a payload that could not be decoded against its expected
// schema. Callers log and drop; decode failures are never retried.
var ErrDecode = errors.New("malformed payload")

// Validator is implemented by messages that carry decode-time constraints.
type Validator interface {
	Validate() error
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagNone,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building CBOR encode mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
		TimeTag:        cbor.DecTagOptional,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building CBOR decode mode: %v", err))
	}
}

// Marshal encodes a message to its CBOR wire form.
func Marshal(v interface{}) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}

	return data, nil
}

// Unmarshal decodes a CBOR payload into v, then applies the message's own
// validation. Both failure modes report ErrDecode.
func Unmarshal(data []byte, v interface{}) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return validate(v)
}

// MarshalJSON encodes a message to the JSON interchange form used at
// streaming boundaries.
func MarshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}

	return data, nil
}

// UnmarshalJSON decodes a JSON payload into v with the same validation
// pass as Unmarshal.
func UnmarshalJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return validate(v)
}

func validate(v interface{}) error {
	checker, ok := v.(Validator)
	if !ok {
		return nil
	}

	if err := checker.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return nil
}

// Now returns the timestamp to stamp on outbound messages. Wire timestamps
// are advisory; consumers key expiry off arrival time instead.
func Now() time.Time {
	return time.Now().UTC()
}
