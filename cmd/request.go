package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"descargamasiva/internal/response"
	"descargamasiva/internal/soap"
	"descargamasiva/internal/store"
)

var (
	reqRfc             string
	reqType            string
	reqStart           string
	reqEnd             string
	reqTipoSolicitud   string
	reqTipoComprobante string
	reqEstado          string
	reqFolio           string
	reqRetenciones     bool
)

// fechas aceptadas en --start/--end, en hora local
var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", time.DateTime}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("fecha inválida %q (use AAAA-MM-DD)", s)
}

// buildParams arma los parámetros de la solicitud a partir de las banderas.
func buildParams(now time.Time) (soap.InvoiceParams, error) {
	p := soap.NewInvoiceParams(now)

	op, err := soap.ParseOperation(reqType)
	if err != nil {
		return p, err
	}
	p.Operation = op

	if reqStart != "" {
		if p.Start, err = parseDate(reqStart); err != nil {
			return p, err
		}
	}
	if reqEnd != "" {
		if p.End, err = parseDate(reqEnd); err != nil {
			return p, err
		}
	}
	if reqTipoSolicitud != "" {
		p.QueryType = soap.QueryType(reqTipoSolicitud)
	}
	p.ReceiptType = soap.ReceiptType(reqTipoComprobante)
	if p.ReceiptStatus, err = soap.ParseReceiptStatus(reqEstado); err != nil {
		return p, err
	}
	p.InvoiceID = reqFolio
	if reqRetenciones {
		p.EndPoint = soap.Retenciones
	}
	return p, p.Validate()
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Envía una solicitud de descarga de CFDI (emitidos o recibidos).",
	Long: `Envía una solicitud de descarga al SAT. Sin --start/--end se pide el
último mes hasta ayer. Con --folio se solicita un solo comprobante.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		params, err := buildParams(time.Now())
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}

		s, err := openSession(ctx, reqRfc, true, out)
		if err != nil {
			fmt.Fprintf(out, "Error al inicializar servicio: %v\n", err)
			return
		}
		defer s.Close()

		res, err := s.svc.Query(ctx, params)
		if err != nil {
			fmt.Fprintf(out, "Error al enviar la solicitud: %v\n", err)
			return
		}
		if !res.Accepted() {
			fmt.Fprintf(out, "El SAT rechazó la solicitud: [%d] %s\n", res.CodEstatus, res.Mensaje)
			return
		}
		fmt.Fprintf(out, "Solicitud enviada exitosamente. ID de Solicitud: %s\n", res.IdSolicitud)

		err = s.db.SaveRequest(ctx, store.Request{
			ID:       res.IdSolicitud,
			RFC:      s.rfc,
			EndPoint: string(params.EndPoint),
			Tipo:     params.EndpointName(),
			Estado:   response.StateAccepted,
		})
		if err != nil {
			fmt.Fprintf(out, "Error al guardar el ID de solicitud: %v\n", err)
			return
		}
		appLog.Info().Str("rfc", s.rfc).Str("solicitud", res.IdSolicitud).Str("tipo", params.EndpointName()).Msg("solicitud registrada")
		fmt.Fprintf(out, "ID guardado en %s\n", appCfg.DBPath(s.rfc))
	},
}

func init() {
	requestCmd.Flags().StringVar(&reqRfc, "rfc", "", "RFC del contribuyente")
	requestCmd.Flags().StringVar(&reqType, "type", "", "Tipo de solicitud: 'emitidas' o 'recibidas'")
	requestCmd.Flags().StringVar(&reqStart, "start", "", "Fecha de inicio (AAAA-MM-DD)")
	requestCmd.Flags().StringVar(&reqEnd, "end", "", "Fecha de fin (AAAA-MM-DD)")
	requestCmd.Flags().StringVar(&reqTipoSolicitud, "tipo-solicitud", "CFDI", "CFDI, Metadata, PDF, PDFCOCEMA o TXTUUIDMASIVA")
	requestCmd.Flags().StringVar(&reqTipoComprobante, "tipo-comprobante", "", "I, E, T, N o P (opcional)")
	requestCmd.Flags().StringVar(&reqEstado, "estado", "vigente", "Estado del comprobante: todos, cancelado o vigente")
	requestCmd.Flags().StringVar(&reqFolio, "folio", "", "UUID de un comprobante (opcional)")
	requestCmd.Flags().BoolVar(&reqRetenciones, "retenciones", false, "Usar el servicio de retenciones")
	requestCmd.MarkFlagRequired("rfc")
	requestCmd.MarkFlagRequired("type")

	rootCmd.AddCommand(requestCmd)
}
