package response

import (
	"errors"
	"fmt"
)

var (
	// ErrDateParsingFailed: la respuesta de Autentica no trae fechas válidas.
	ErrDateParsingFailed = errors.New("response: no se pudieron interpretar las fechas del token")
	// ErrMalformedResponse: respuesta 2xx sin los datos esperados o XML inválido.
	ErrMalformedResponse = errors.New("response: respuesta mal formada")
)

// Fault es un SOAP Fault.
type Fault struct {
	Code    string
	Message string
}

// HTTPError is returned for any status outside [200,299]. The body is
// never used as data; Fault is filled only when the body carries one.
type HTTPError struct {
	StatusCode int
	Fault      *Fault
}

func (e *HTTPError) Error() string {
	if e.Fault != nil {
		return fmt.Sprintf("respuesta SAT (%d): [%s] %s", e.StatusCode, e.Fault.Code, e.Fault.Message)
	}
	return fmt.Sprintf("respuesta SAT (%d)", e.StatusCode)
}

// StatusOK reporta si status está en [200,299].
func StatusOK(status int) bool { return status >= 200 && status <= 299 }
