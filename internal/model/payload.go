package model

import (
	"encoding/json"
	"fmt"
)

// ActionDelete is the only recognized action value.
const ActionDelete = "delete"

// Payload is the tagged union of inbound operations:
// *FunnelRecord or *CurrencyRecord (save) and *DeleteRequest.
type Payload interface {
	Kind() Kind
}

// DeleteRequest removes the first row whose id matches.
type DeleteRequest struct {
	ID   Cell
	Type Cell
}

// Kind implements Payload; it routes like a record of the same type would.
func (d *DeleteRequest) Kind() Kind { return KindOf(d.Type) }

// Request is a decoded inbound body.
type Request struct {
	AuthToken Cell
	Payload   Payload
}

// DecodeError reports a body that is not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeRequest parses an inbound body into a Request.
//
// Decoding is permissive: unknown fields are ignored and missing fields stay
// empty. A delete needs action "delete" and a truthy id; anything else is a save
// routed by its type field. Valid JSON that is not an object decodes as an
// object with no fields (and so fails authentication downstream).
func DecodeRequest(body []byte) (*Request, error) {
	fields, err := decodeFields(body)
	if err != nil {
		return nil, err
	}

	return &Request{AuthToken: fields["auth_token"], Payload: PayloadFromFields(fields)}, nil
}

// PayloadFromFields builds the operation described by a decoded object.
func PayloadFromFields(fields map[string]Cell) Payload {
	action, _ := fields["action"].Str()
	if action == ActionDelete && fields["id"].Truthy() {
		return &DeleteRequest{ID: fields["id"], Type: fields["type"]}
	}

	switch KindOf(fields["type"]) {
	case KindCurrency:
		rec := &CurrencyRecord{}
		fieldsInto(rec.cells(), CurrencyColumns, fields)
		return rec
	default:
		rec := &FunnelRecord{}
		fieldsInto(rec.cells(), FunnelColumns, fields)
		return rec
	}
}

// payloadKeys are the only fields a request body is read for.
var payloadKeys = func() map[string]bool {
	keys := map[string]bool{"action": true, "auth_token": true}
	for _, c := range FunnelColumns {
		keys[c] = true
	}
	for _, c := range CurrencyColumns {
		keys[c] = true
	}
	return keys
}()

// decodeFields parses the known fields of an object body. Unknown fields are
// never parsed.
func decodeFields(body []byte) (map[string]Cell, error) {
	if !json.Valid(body) {
		var probe any
		return nil, &DecodeError{Err: json.Unmarshal(body, &probe)}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return map[string]Cell{}, nil
	}

	fields := make(map[string]Cell, len(raw))
	for k, v := range raw {
		if !payloadKeys[k] {
			continue
		}
		c, err := ParseCell(v)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("field %q: %w", k, err)}
		}
		fields[k] = c
	}
	return fields, nil
}
