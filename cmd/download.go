package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"descargamasiva/internal/descarga"
	"descargamasiva/internal/token"
)

var (
	downloadRfc         string
	downloadID          string
	downloadRetenciones bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Descarga un paquete de CFDI.",
	Long:  `Descarga un paquete específico por su ID, o todos los paquetes pendientes si no se proporciona un ID.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		s, err := openSession(ctx, downloadRfc, true, out)
		if err != nil {
			fmt.Fprintf(out, "Error al inicializar servicio: %v\n", err)
			return
		}
		defer s.Close()

		if downloadID != "" {
			fmt.Fprintf(out, "Descargando paquete: %s\n", downloadID)
			if err := s.downloadOne(ctx, out, downloadID, token.AudienceFor(downloadRetenciones)); err != nil {
				fmt.Fprintf(out, "Error al descargar: %v\n", err)
			}
			return
		}

		fmt.Fprintln(out, "Descargando todos los paquetes pendientes...")
		pkgs, err := s.db.PendingPackages(ctx)
		if err != nil {
			fmt.Fprintf(out, "No se pudieron leer los IDs de descarga: %v\n", err)
			return
		}
		if len(pkgs) == 0 {
			fmt.Fprintln(out, "No hay paquetes pendientes.")
			return
		}
		for _, p := range pkgs {
			fmt.Fprintf(out, "Descargando paquete: %s\n", p.ID)
			aud := s.audienceFor(ctx, p.RequestID, token.Primary)
			if err := s.downloadOne(ctx, out, p.ID, aud); err != nil {
				appLog.Warn().Err(err).Str("paquete", p.ID).Msg("descarga fallida")
				fmt.Fprintf(out, "  > Error al descargar el paquete %s: %v\n", p.ID, err)
				continue
			}
			fmt.Fprintf(out, "  > Paquete %s descargado y procesado.\n", p.ID)
		}
	},
}

// downloadOne descarga un paquete, lo descomprime en cfdis/ y lo marca.
func (s *session) downloadOne(ctx context.Context, out io.Writer, packageID string, aud token.Audience) error {
	res, err := s.svc.Download(ctx, aud, packageID)
	if err != nil {
		return err
	}
	if !res.Accepted() {
		return fmt.Errorf("el SAT respondió [%d] %s", res.CodEstatus, res.Mensaje)
	}
	if len(res.Paquete) == 0 {
		return fmt.Errorf("la respuesta no contiene paquete")
	}
	files, err := descarga.ExtractPackage(res.Paquete, s.cfdiDir())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  > %d archivos nuevos en %s\n", len(files), s.cfdiDir())
	return s.db.MarkDownloaded(ctx, packageID)
}

func init() {
	downloadCmd.Flags().StringVar(&downloadRfc, "rfc", "", "RFC del contribuyente")
	downloadCmd.Flags().StringVar(&downloadID, "id", "", "ID del paquete a descargar (opcional)")
	downloadCmd.Flags().BoolVar(&downloadRetenciones, "retenciones", false, "El paquete pertenece al servicio de retenciones (solo con --id)")
	downloadCmd.MarkFlagRequired("rfc")

	rootCmd.AddCommand(downloadCmd)
}
