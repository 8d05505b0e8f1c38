package cmd

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"descargamasiva/internal/certs"
)

var (
	keyPath string
	cerPath string
	pfxPath string
)

var rfcRegex = regexp.MustCompile(`([A-Z&Ñ]{3,4}\d{6}[A-Z0-9]{3})`)

var addRfcCmd = &cobra.Command{
	Use:   "add-rfc",
	Short: "Registra un nuevo RFC usando los archivos de la e.firma",
	Long: `Lee el certificado (.cer o .pfx) para extraer el RFC, crea un directorio
de trabajo en <home>/<RFC> y guarda la configuración de los archivos de la e.firma.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		var cert *x509.Certificate
		rc := rfcConfig{}
		if pfxPath != "" {
			password, err := readPassword(out)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				return
			}
			id, err := certs.LoadPKCS12(pfxPath, string(password))
			if err != nil {
				fmt.Fprintf(out, "Error al leer el archivo .pfx: %v\n", err)
				return
			}
			cert = id.Certificate()
			rc.PfxPath = absPath(pfxPath)
		} else {
			cerBytes, err := os.ReadFile(cerPath)
			if err != nil {
				fmt.Fprintf(out, "Error al leer el archivo .cer: %v\n", err)
				return
			}
			cert, err = certs.ParseCertificate(cerBytes)
			if err != nil {
				fmt.Fprintf(out, "Error al parsear el certificado: %v\n", err)
				fmt.Fprintln(out, "Asegúrate de que el archivo .cer sea válido y esté en formato PEM o DER.")
				return
			}
			rc.CerPath = absPath(cerPath)
			rc.KeyPath = absPath(keyPath)
		}

		rfc, err := findRfcInCertificate(cert)
		if err != nil {
			fmt.Fprintln(out, "Error: No se pudo encontrar un RFC válido en el certificado.")
			fmt.Fprintln(out, "Asegúrate de que el certificado es el de la e.firma emitido por el SAT.")
			return
		}
		fmt.Fprintf(out, "RFC extraído del certificado: %s\n", rfc)

		rfcDir := appCfg.RFCDir(rfc)
		if err := os.MkdirAll(filepath.Join(rfcDir, "cfdis"), 0o755); err != nil {
			fmt.Fprintf(out, "Error al crear el directorio para el RFC: %v\n", err)
			return
		}
		fmt.Fprintf(out, "Directorio de trabajo creado en: %s\n", rfcDir)

		configPath, err := saveRFCConfig(rfcDir, rc)
		if err != nil {
			fmt.Fprintf(out, "Error al guardar el archivo de configuración: %v\n", err)
			return
		}
		fmt.Fprintf(out, "Configuración guardada exitosamente en: %s\n", configPath)
		fmt.Fprintf(out, "RFC %s ha sido registrado correctamente.\n", rfc)
	},
}

// findRfcInCertificate toma el RFC del atributo 2.5.4.45; si no está, lo
// busca en el Subject completo. En personas morales el atributo trae
// "RFC / RFC del representante"; se usa la primera parte.
func findRfcInCertificate(cert *x509.Certificate) (string, error) {
	if v, err := certs.SubjectID(cert); err == nil {
		rfc := strings.TrimSpace(strings.SplitN(v, "/", 2)[0])
		if rfc != "" {
			return strings.ToUpper(rfc), nil
		}
	}
	matches := rfcRegex.FindStringSubmatch(cert.Subject.String())
	if len(matches) > 1 {
		return matches[1], nil
	}
	return "", fmt.Errorf("no se encontró un RFC en los campos del certificado")
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func init() {
	rootCmd.AddCommand(addRfcCmd)
	addRfcCmd.Flags().StringVar(&keyPath, "key", "", "Ruta al archivo .key de la e.firma")
	addRfcCmd.Flags().StringVar(&cerPath, "cer", "", "Ruta al archivo .cer de la e.firma")
	addRfcCmd.Flags().StringVar(&pfxPath, "pfx", "", "Ruta al archivo .pfx (en lugar de --cer y --key)")
	addRfcCmd.MarkFlagsRequiredTogether("key", "cer")
	addRfcCmd.MarkFlagsMutuallyExclusive("pfx", "cer")
	addRfcCmd.MarkFlagsOneRequired("pfx", "cer")
}
