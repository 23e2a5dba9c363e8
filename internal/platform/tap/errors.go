package tap

import (
	"errors"
	"fmt"
)

// ErrGateway matches every *GatewayError via errors.Is.
var ErrGateway = errors.New("payment gateway error")

// GatewayError is returned for any failed gateway call. HTTPStatus is zero
// when no response was received.
type GatewayError struct {
	Op         string
	HTTPStatus int
	Code       string
	Message    string
	Err        error
	// NotSent marks failures before the request left the process.
	NotSent bool
}

func (e *GatewayError) Error() string {
	switch {
	case e.HTTPStatus == 0 && e.Err != nil:
		return fmt.Sprintf("tap %s: %v", e.Op, e.Err)
	case e.Code != "":
		return fmt.Sprintf("tap %s: http %d: %s (%s)", e.Op, e.HTTPStatus, e.Message, e.Code)
	default:
		return fmt.Sprintf("tap %s: http %d: %s", e.Op, e.HTTPStatus, e.Message)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// Definitive reports whether the request certainly had no effect: either it
// was never sent or the gateway answered with a rejection. Transport
// failures and 5xx answers leave the outcome unknown.
func (e *GatewayError) Definitive() bool {
	return e.NotSent || (e.HTTPStatus >= 400 && e.HTTPStatus < 500)
}

// UserMessage is the text shown to the merchant.
func (e *GatewayError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.HTTPStatus == 0 {
		return "payment gateway unreachable"
	}
	return "payment gateway rejected the request"
}
