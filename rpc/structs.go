package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Messages cross the wire as structpb documents. Conversion goes through
// encoding/json so the JSON tags and marshalers of the Go types decide
// the field names and formats.

func toStruct(v any) (*structpb.Struct, error) {
	var m map[string]any
	if err := remarshal(v, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("building struct: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	return remarshal(s.AsMap(), v)
}

// decodeRequest is fromStruct that also rejects fields v does not have.
func decodeRequest(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func toValue(v any) (*structpb.Value, error) {
	var doc any
	if err := remarshal(v, &doc); err != nil {
		return nil, err
	}
	val, err := structpb.NewValue(doc)
	if err != nil {
		return nil, fmt.Errorf("building value: %w", err)
	}
	return val, nil
}

func fromValue(val *structpb.Value, v any) error {
	return remarshal(val.AsInterface(), v)
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %T: %w", in, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %T: %w", out, err)
	}
	return nil
}
