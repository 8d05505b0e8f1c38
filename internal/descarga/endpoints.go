package descarga

import (
	"fmt"

	"descargamasiva/internal/token"
)

// Endpoints are the four service URLs for one audience.
type Endpoints struct {
	Auth     string
	Query    string
	Verify   string
	Download string
}

// DefaultEndpoints devuelve los hosts productivos del SAT; la audiencia solo
// cambia el prefijo del host (cfdi / reten).
func DefaultEndpoints(aud token.Audience) Endpoints {
	solicitud := fmt.Sprintf("https://%sdescargamasivasolicitud.clouda.sat.gob.mx", aud)
	return Endpoints{
		Auth:     solicitud + "/Autenticacion/Autenticacion.svc",
		Query:    solicitud + "/SolicitaDescargaService.svc",
		Verify:   solicitud + "/VerificaSolicitudDescargaService.svc",
		Download: fmt.Sprintf("https://%sdescargamasiva.clouda.sat.gob.mx/DescargaMasivaService.svc", aud),
	}
}

// WithBase reemplaza los hosts por base conservando las rutas; útil contra un stub.
func WithBase(base string) Endpoints {
	return Endpoints{
		Auth:     base + "/Autenticacion/Autenticacion.svc",
		Query:    base + "/SolicitaDescargaService.svc",
		Verify:   base + "/VerificaSolicitudDescargaService.svc",
		Download: base + "/DescargaMasivaService.svc",
	}
}
