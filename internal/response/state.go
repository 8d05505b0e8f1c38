package response

import "fmt"

// VerificationState is EstadoSolicitud. The set is open: unknown values
// are kept as-is.
type VerificationState int

const (
	StateAccepted   VerificationState = 1
	StateInProgress VerificationState = 2
	StateCompleted  VerificationState = 3
	StateError      VerificationState = 4
	StateRejected   VerificationState = 5
	StateExpired    VerificationState = 6
)

func (s VerificationState) String() string {
	switch s {
	case StateAccepted:
		return "Aceptada"
	case StateInProgress:
		return "En proceso"
	case StateCompleted:
		return "Terminada"
	case StateError:
		return "Error"
	case StateRejected:
		return "Rechazada"
	case StateExpired:
		return "Vencida"
	default:
		return fmt.Sprintf("Desconocido(%d)", int(s))
	}
}

// IsPending: la solicitud sigue en cola o en proceso.
func (s VerificationState) IsPending() bool {
	return s == StateAccepted || s == StateInProgress
}

// IsTerminal: ya no cambiará de estado.
func (s VerificationState) IsTerminal() bool {
	return s >= StateCompleted && s <= StateExpired
}
