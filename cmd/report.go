package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	reportRfc   string
	reportQuery string
)

const defaultQuery = "SELECT * FROM cfdis ORDER BY fecha ASC;"

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Genera un reporte desde la base de datos de CFDI.",
	Long:  `Ejecuta una consulta en la base de datos SQLite y muestra los resultados. Se puede proporcionar una consulta personalizada.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		s, err := openSession(ctx, reportRfc, false, out)
		if err != nil {
			fmt.Fprintf(out, "Error: %v. Ejecute 'db-sync' primero.\n", err)
			return
		}
		defer s.Close()

		query := defaultQuery
		if reportQuery != "" {
			query = reportQuery
		}
		fmt.Fprintf(out, "Ejecutando consulta: %s\n\n", query)

		n, err := s.db.Report(ctx, query, out)
		if err != nil {
			fmt.Fprintf(out, "Error al generar el reporte: %v\n", err)
			return
		}
		fmt.Fprintf(out, "\nTotal de registros: %d\n", n)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportRfc, "rfc", "", "RFC del contribuyente")
	reportCmd.Flags().StringVarP(&reportQuery, "query", "q", "", "Consulta SQL personalizada a ejecutar")
	reportCmd.MarkFlagRequired("rfc")

	rootCmd.AddCommand(reportCmd)
}
