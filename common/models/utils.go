package models

import (
	"encoding/json"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"reflect"
	"time"
)

/**
convenience function to perform a mapstructure decode using the customised decode hook below,
to handle UUID, timestamp and list strings. Input is weakly typed, because everything that comes
back from a redis hash is a string.
*/
func CustomisedMapStructureDecode(incoming interface{}, outgoing interface{}) error {
	decoder, setupErr := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructureDecodeHook,
		WeaklyTypedInput: true,
		Result:           outgoing,
	})
	if setupErr != nil {
		return setupErr
	}
	return decoder.Decode(incoming)
}

/**
this custom decode hook will perform a few extra conversions:
- string to uuid, by parsing the uuid
- string to time, as an RFC 3339 timestamp
- string to []string, as a json-encoded list
in each case a parse failure is sent back up the chain.
*/
func mapstructureDecodeHook(inType reflect.Type, outType reflect.Type, value interface{}) (interface{}, error) {
	if inType != reflect.TypeOf("") {
		return value, nil
	}

	switch outType {
	case reflect.TypeOf(uuid.UUID{}):
		return uuid.Parse(value.(string))
	case reflect.TypeOf(time.Time{}):
		return time.Parse(time.RFC3339, value.(string))
	case reflect.TypeOf([]string{}):
		var list []string
		if value.(string) == "" {
			return list, nil
		}
		unmarshalErr := json.Unmarshal([]byte(value.(string)), &list)
		if unmarshalErr != nil {
			return nil, unmarshalErr
		}
		return list, nil
	default:
		return value, nil
	}
}
