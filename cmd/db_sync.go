package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"descargamasiva/internal/store"
)

var (
	dbSyncRfc     string
	dbSyncRebuild bool
)

var dbSyncCmd = &cobra.Command{
	Use:   "db-sync",
	Short: "Sincroniza los XML descargados a una base de datos SQLite.",
	Long: `Escanea el directorio de CFDI, parsea los XML y guarda los datos en una base de datos SQLite para futuras consultas y reportes.
Las columnas se definen en <home>/<RFC>/campos, una por línea: nombre tipo xpath.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		// No requiere la e.firma.
		s, err := openSession(ctx, dbSyncRfc, false, out)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		defer s.Close()

		camposFile := filepath.Join(s.dir, "campos")
		campos, created, err := store.LoadCampos(camposFile)
		if err != nil {
			fmt.Fprintf(out, "Error en el archivo de campos: %v\n", err)
			return
		}
		if created {
			fmt.Fprintf(out, "Archivo 'campos' no encontrado. Se creó uno por defecto en %s\n", camposFile)
		}

		if dbSyncRebuild {
			if err := s.db.DropCFDIs(ctx); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				return
			}
			fmt.Fprintln(out, "Índice anterior eliminado.")
		}

		fmt.Fprintln(out, "Iniciando sincronización de la base de datos...")
		res, err := s.db.SyncCFDIs(ctx, s.cfdiDir(), campos)
		if err != nil {
			fmt.Fprintf(out, "Error durante la sincronización: %v\n", err)
			return
		}
		for _, f := range res.Failed {
			fmt.Fprintf(out, "  > No se pudo procesar %s\n", filepath.Base(f))
		}
		fmt.Fprintf(out, "Sincronización completada: %d nuevos, %d existentes, %d con error.\n",
			res.Inserted, res.Existing, len(res.Failed))
	},
}

func init() {
	dbSyncCmd.Flags().StringVar(&dbSyncRfc, "rfc", "", "RFC del contribuyente a sincronizar")
	dbSyncCmd.Flags().BoolVar(&dbSyncRebuild, "rebuild", false, "Borra el índice y lo reconstruye (p. ej. tras cambiar el archivo campos)")
	dbSyncCmd.MarkFlagRequired("rfc")

	rootCmd.AddCommand(dbSyncCmd)
}
