package soap

import (
	"fmt"
	"strings"
	"time"
)

// Operation indica si se piden comprobantes emitidos o recibidos.
type Operation string

const (
	Emitidas  Operation = "emitidas"
	Recibidas Operation = "recibidas"
)

// QueryType es el TipoSolicitud.
type QueryType string

const (
	QueryMetadata  QueryType = "Metadata"
	QueryCFDI      QueryType = "CFDI"
	QueryPDF       QueryType = "PDF"
	QueryPDFCOCEMA QueryType = "PDFCOCEMA"
	QueryTXTUUID   QueryType = "TXTUUIDMASIVA"
)

// ReceiptType es el TipoComprobante.
type ReceiptType string

const (
	ReceiptIngreso  ReceiptType = "I"
	ReceiptEgreso   ReceiptType = "E"
	ReceiptTraslado ReceiptType = "T"
	ReceiptNomina   ReceiptType = "N"
	ReceiptPago     ReceiptType = "P"
)

// ReceiptStatus es el EstadoComprobante.
type ReceiptStatus string

const (
	StatusTodos     ReceiptStatus = "Todos"
	StatusCancelado ReceiptStatus = "Cancelado"
	StatusVigente   ReceiptStatus = "Vigente"
)

// EndPoint selecciona el servicio de facturas o el de retenciones.
type EndPoint string

const (
	Facturas    EndPoint = "facturas"
	Retenciones EndPoint = "retenciones"
)

const dateLayout = "2006-01-02T15:04:05.000Z"

// InvoiceParams describes one download request.
//
// ReceiptType and ReceiptStatus are optional: the empty value leaves the
// attribute out. InvoiceID switches the request to a folio lookup and the
// date range is ignored.
type InvoiceParams struct {
	Operation     Operation
	Start         time.Time
	End           time.Time
	QueryType     QueryType
	ReceiptType   ReceiptType
	ReceiptStatus ReceiptStatus
	InvoiceID     string
	EndPoint      EndPoint
}

// NewInvoiceParams devuelve los valores por defecto: emitidas, CFDI vigentes,
// desde hace un mes hasta ayer.
func NewInvoiceParams(now time.Time) InvoiceParams {
	return InvoiceParams{
		Operation:     Emitidas,
		Start:         now.AddDate(0, -1, 0),
		End:           now.AddDate(0, 0, -1),
		QueryType:     QueryCFDI,
		ReceiptStatus: StatusVigente,
		EndPoint:      Facturas,
	}
}

// IsRetention reports whether the request targets the retention service.
func (p InvoiceParams) IsRetention() bool { return p.EndPoint == Retenciones }

// EndpointName es el nombre de la operación SOAP de solicitud.
func (p InvoiceParams) EndpointName() string {
	switch {
	case p.InvoiceID != "":
		return "SolicitaDescargaFolio"
	case p.Operation == Recibidas:
		return "SolicitaDescargaRecibidos"
	default:
		return "SolicitaDescargaEmitidos"
	}
}

// Validate revisa los enumerados y el rango de fechas.
func (p InvoiceParams) Validate() error {
	switch p.Operation {
	case Emitidas, Recibidas:
	default:
		return fmt.Errorf("%w: operación %q", ErrInvalidParams, p.Operation)
	}
	switch p.QueryType {
	case QueryMetadata, QueryCFDI, QueryPDF, QueryPDFCOCEMA, QueryTXTUUID:
	default:
		return fmt.Errorf("%w: tipo de solicitud %q", ErrInvalidParams, p.QueryType)
	}
	switch p.ReceiptType {
	case "", ReceiptIngreso, ReceiptEgreso, ReceiptTraslado, ReceiptNomina, ReceiptPago:
	default:
		return fmt.Errorf("%w: tipo de comprobante %q", ErrInvalidParams, p.ReceiptType)
	}
	switch p.ReceiptStatus {
	case "", StatusTodos, StatusCancelado, StatusVigente:
	default:
		return fmt.Errorf("%w: estado de comprobante %q", ErrInvalidParams, p.ReceiptStatus)
	}
	switch p.EndPoint {
	case Facturas, Retenciones:
	default:
		return fmt.Errorf("%w: endpoint %q", ErrInvalidParams, p.EndPoint)
	}
	if p.InvoiceID == "" && p.Start.After(p.End) {
		return fmt.Errorf("%w: la fecha inicial es posterior a la final", ErrInvalidParams)
	}
	return nil
}

// ParseOperation acepta "emitidas"/"emitidos" y "recibidas"/"recibidos".
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emitidas", "emitidos":
		return Emitidas, nil
	case "recibidas", "recibidos":
		return Recibidas, nil
	}
	return "", fmt.Errorf("%w: operación %q", ErrInvalidParams, s)
}

// ParseReceiptStatus normaliza "vigente" a "Vigente", etc.
func ParseReceiptStatus(s string) (ReceiptStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "todos":
		return StatusTodos, nil
	case "cancelado":
		return StatusCancelado, nil
	case "vigente":
		return StatusVigente, nil
	}
	return "", fmt.Errorf("%w: estado de comprobante %q", ErrInvalidParams, s)
}

func startOfDay(t time.Time) string {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).UTC().Format(dateLayout)
}

func endOfDay(t time.Time) string {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location()).UTC().Format(dateLayout)
}

// requestAttrs devuelve los atributos de <solicitud> en el orden que se firma.
func (p InvoiceParams) requestAttrs(rfc string) []attr {
	attrs := make([]attr, 0, 6)
	if p.ReceiptStatus != "" {
		attrs = append(attrs, attr{"EstadoComprobante", string(p.ReceiptStatus)})
	}
	if p.InvoiceID != "" {
		attrs = append(attrs, attr{"Folio", p.InvoiceID})
	} else {
		attrs = append(attrs,
			attr{"FechaInicial", startOfDay(p.Start)},
			attr{"FechaFinal", endOfDay(p.End)},
		)
		if p.Operation == Recibidas {
			attrs = append(attrs, attr{"RfcReceptor", rfc})
		} else {
			attrs = append(attrs, attr{"RfcEmisor", rfc})
		}
	}
	if p.ReceiptType != "" {
		attrs = append(attrs, attr{"TipoComprobante", string(p.ReceiptType)})
	}
	attrs = append(attrs, attr{"TipoSolicitud", string(p.QueryType)})
	return attrs
}
