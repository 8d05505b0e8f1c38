package descarga

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractPackage descomprime un paquete en dir y devuelve las rutas escritas.
// Los archivos que ya existen no se reescriben.
func ExtractPackage(data []byte, dir string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("abrir paquete: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, f := range zr.File {
		fpath := filepath.Join(root, f.Name)
		if fpath != root && !strings.HasPrefix(fpath, root+string(os.PathSeparator)) {
			return written, fmt.Errorf("ruta inválida en el paquete: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if _, err := os.Stat(fpath); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return written, err
		}
		if err := extractFile(f, fpath); err != nil {
			return written, err
		}
		written = append(written, fpath)
	}
	return written, nil
}

func extractFile(f *zip.File, fpath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
