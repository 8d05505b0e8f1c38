package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"descargamasiva/internal/token"
)

var (
	authRfc         string
	authRetenciones bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Prueba la autenticación con el web service del SAT.",
	Long:  `Usa la e.firma registrada para un RFC para solicitar un token de autenticación al SAT. Forzará una nueva autenticación aunque exista un token reciente.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		s, err := openSession(ctx, authRfc, true, out)
		if err != nil {
			fmt.Fprintf(out, "Error al inicializar el servicio SAT: %v\n", err)
			return
		}
		defer s.Close()

		aud := token.AudienceFor(authRetenciones)
		tok, err := s.svc.Tokens().Refresh(ctx, aud)
		if err != nil {
			fmt.Fprintf(out, "Error durante la autenticación: %v\n", err)
			return
		}

		fmt.Fprintf(out, "Token %s obtenido.\n", aud)
		fmt.Fprintf(out, "  > Creado:  %s\n", tok.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(out, "  > Expira:  %s\n", tok.ExpiresAt.Local().Format(time.DateTime))
		fmt.Fprintln(out, "Comando 'auth' ejecutado exitosamente.")
	},
}

func init() {
	authCmd.Flags().StringVar(&authRfc, "rfc", "", "RFC a autenticar")
	authCmd.Flags().BoolVar(&authRetenciones, "retenciones", false, "Autenticar contra el servicio de retenciones")
	authCmd.MarkFlagRequired("rfc")
	rootCmd.AddCommand(authCmd)
}
