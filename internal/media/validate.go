package media

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/IshaanNene/kitmanual/internal/types"
)

// PDFCheck validates a downloaded file before it is moved into place.
type PDFCheck func(path string) error

var pdfMagic = []byte("%PDF-")

// CheckHeader verifies the file starts with the PDF magic bytes. Vendors
// answer some missing manuals with an HTML error page and status 200.
func CheckHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return types.ErrNotPDF
	}
	return nil
}

// ValidatePDF checks the header and then parses the document with pdfcpu
// in relaxed mode.
func ValidatePDF(path string) error {
	if err := CheckHeader(path); err != nil {
		return err
	}
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotPDF, err)
	}
	return nil
}
