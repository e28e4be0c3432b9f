package wire

import (
	"encoding/json"
	"fmt"
)

// Response is the synchronous reply envelope for every request. Status is
// always set; Message only on errors and acknowledgements; Order carries the
// "disconnect" sentinel the connection handler watches for.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Order   string `json:"order,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown request"
)

// OrderDisconnect tags a response so the per-connection loop terminates
// after writing it.
const OrderDisconnect = "disconnect"

func Success(message string) Response {
	return Response{Status: StatusSuccess, Message: message}
}

func Error(message string) Response {
	return Response{Status: StatusError, Message: message}
}

func Unknown() Response {
	return Response{Status: StatusUnknown}
}

// MessageType peeks at the top-level "type" discriminator without decoding
// the rest of the object.
func MessageType(data []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}
	return head.Type, nil
}

// Encode marshals any response or push message.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
