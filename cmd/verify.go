package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"descargamasiva/internal/response"
	"descargamasiva/internal/soap"
	"descargamasiva/internal/store"
	"descargamasiva/internal/token"
)

var (
	verifyRfc         string
	verifyID          string
	verifyRetenciones bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verifica el estado de una solicitud de descarga.",
	Long:  `Verifica el estado de una solicitud específica por su ID, o todas las solicitudes pendientes si no se proporciona un ID.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		s, err := openSession(ctx, verifyRfc, true, out)
		if err != nil {
			fmt.Fprintf(out, "Error al inicializar servicio: %v\n", err)
			return
		}
		defer s.Close()

		if verifyID != "" {
			fmt.Fprintf(out, "Verificando ID: %s\n", verifyID)
			aud := s.audienceFor(ctx, verifyID, token.AudienceFor(verifyRetenciones))
			if err := s.verifyOne(ctx, out, verifyID, aud); err != nil {
				fmt.Fprintf(out, "Error al verificar: %v\n", err)
			}
			return
		}

		fmt.Fprintln(out, "Verificando todas las solicitudes pendientes...")
		pending, err := s.db.PendingRequests(ctx)
		if err != nil {
			fmt.Fprintf(out, "No se pudieron leer las solicitudes pendientes: %v\n", err)
			return
		}
		if len(pending) == 0 {
			fmt.Fprintln(out, "No hay solicitudes pendientes.")
			return
		}
		for _, r := range pending {
			fmt.Fprintf(out, "Verificando ID: %s\n", r.ID)
			aud := token.AudienceFor(r.EndPoint == string(soap.Retenciones))
			if err := s.verifyOne(ctx, out, r.ID, aud); err != nil {
				// sigue pendiente; se reintenta en la próxima ejecución
				appLog.Warn().Err(err).Str("solicitud", r.ID).Msg("verificación fallida")
				fmt.Fprintf(out, "Error al verificar ID %s: %v\n", r.ID, err)
			}
		}
	},
}

// verifyOne consulta una solicitud y guarda estado y paquetes.
func (s *session) verifyOne(ctx context.Context, out io.Writer, requestID string, aud token.Audience) error {
	res, err := s.svc.Verify(ctx, aud, requestID)
	if err != nil {
		return err
	}
	if !res.Accepted() {
		fmt.Fprintf(out, "  > El SAT respondió [%d] %s\n", res.CodEstatus, res.Mensaje)
		return nil
	}
	fmt.Fprintf(out, "  > Estado: %s (%d)\n", res.Estado, int(res.Estado))

	if _, ok, err := s.db.GetRequest(ctx, requestID); err == nil && !ok {
		endpoint := soap.Facturas
		if aud == token.Retention {
			endpoint = soap.Retenciones
		}
		if err := s.db.SaveRequest(ctx, store.Request{ID: requestID, RFC: s.rfc, EndPoint: string(endpoint), Tipo: "desconocido"}); err != nil {
			return err
		}
	}
	if err := s.db.UpdateRequest(ctx, requestID, res.Estado, res.NumeroCFDIs); err != nil {
		return err
	}

	switch {
	case res.Estado == response.StateCompleted && len(res.IdsPaquetes) > 0:
		fmt.Fprintf(out, "  > ¡Éxito! IDs de descarga recibidos: %v\n", res.IdsPaquetes)
		return s.db.AddPackages(ctx, requestID, res.IdsPaquetes)
	case res.Estado == response.StateCompleted:
		fmt.Fprintln(out, "  > La solicitud ha terminado pero no generó paquetes de descarga (posiblemente no se encontraron CFDI).")
	case res.Estado.IsTerminal():
		fmt.Fprintln(out, "  > La solicitud ha finalizado con un estado de error/terminal y será eliminada de la lista de pendientes.")
	}
	return nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifyRfc, "rfc", "", "RFC del contribuyente")
	verifyCmd.Flags().StringVar(&verifyID, "id", "", "ID de la solicitud a verificar (opcional)")
	verifyCmd.Flags().BoolVar(&verifyRetenciones, "retenciones", false, "La solicitud pertenece al servicio de retenciones (solo con --id no registrado)")
	verifyCmd.MarkFlagRequired("rfc")

	rootCmd.AddCommand(verifyCmd)
}
