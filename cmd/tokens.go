package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokensRfc string

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Muestra los tokens guardados y su vigencia.",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		s, err := openSession(ctx, tokensRfc, false, out)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		defer s.Close()

		toks, err := s.db.Tokens(ctx)
		if err != nil {
			fmt.Fprintf(out, "Error al leer los tokens: %v\n", err)
			return
		}
		if len(toks) == 0 {
			fmt.Fprintln(out, "No hay tokens guardados. Ejecute 'auth'.")
			return
		}
		now := time.Now()
		for _, t := range toks {
			estado := "expirado"
			if t.ValidAt(now) {
				estado = fmt.Sprintf("vigente (%s restantes)", t.ExpiresAt.Sub(now).Round(time.Second))
			}
			fmt.Fprintf(out, "%s|%s|%s|%s\n", t.Audience,
				t.CreatedAt.Local().Format(time.DateTime), t.ExpiresAt.Local().Format(time.DateTime), estado)
		}
	},
}

func init() {
	tokensCmd.Flags().StringVar(&tokensRfc, "rfc", "", "RFC del contribuyente")
	tokensCmd.MarkFlagRequired("rfc")

	rootCmd.AddCommand(tokensCmd)
}
