package rpc

import (
	"github.com/yokan-project/yokan/pkg/status"
	"github.com/yokan-project/yokan/pkg/wire"
)

// encodeEnvelope builds a request frame body: providerID, rpc name, and
// the raw handler-specific payload appended verbatim (the payload already
// knows its own length from the frame header, so it is not re-prefixed).
func encodeEnvelope(providerID uint16, name string, payload []byte) []byte {
	e := wire.NewEncoder(2 + len(name) + 8 + len(payload))
	e.PutUint16(providerID)
	e.PutString(name)
	return append(e.Bytes(), payload...)
}

func decodeEnvelope(body []byte) (providerID uint16, name string, payload []byte, err error) {
	d := wire.NewDecoder(body)
	providerID, err = d.GetUint16()
	if err != nil {
		return 0, "", nil, err
	}
	name, err = d.GetString()
	if err != nil {
		return 0, "", nil, err
	}
	payload = body[len(body)-d.Remaining():]
	return providerID, name, payload, nil
}

// encodeResponse builds a response/back-response frame body: a wire
// Status followed by the raw payload.
func encodeResponse(s status.Status, payload []byte) []byte {
	e := wire.NewEncoder(4 + len(s.Message) + 8 + len(payload))
	e.PutInt32(int32(s.Code))
	e.PutString(s.Message)
	return append(e.Bytes(), payload...)
}

func encodeStatus(s status.Status) []byte { return encodeResponse(s, nil) }

func decodeResponse(body []byte) (status.Status, []byte, error) {
	d := wire.NewDecoder(body)
	code, err := d.GetInt32()
	if err != nil {
		return status.Status{}, nil, err
	}
	msg, err := d.GetString()
	if err != nil {
		return status.Status{}, nil, err
	}
	payload := body[len(body)-d.Remaining():]
	s := status.Status{Code: status.Code(code), Message: msg}
	if !s.IsOK() {
		return s, nil, nil
	}
	return s, payload, nil
}
