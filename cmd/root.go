package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"descargamasiva/pkg/config"
	"descargamasiva/pkg/logger"
)

var (
	appCfg *config.Config
	appLog *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sat",
	Short: "Una aplicación CLI para la descarga masiva de CFDI y retenciones del SAT.",
	Long: `sat es una herramienta de línea de comandos para interactuar
con los web services de descarga masiva del SAT, permitiendo
registrar RFCs, solicitar, verificar y descargar comprobantes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		appCfg = cfg
		appLog = logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
		appLog.Debug().Str("home", cfg.Home).Str("driver", cfg.DB.Driver).Str("comando", cmd.Name()).Msg("configuración cargada")
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Hubo un error al ejecutar la aplicación: '%s'\n", err)
		stop()
		os.Exit(1)
	}
}
