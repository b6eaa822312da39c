package orders

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"carsucart/models"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// PickupPayload is what the QR code on a receipt encodes; the seller scans
// it at hand-over.
func PickupPayload(o models.Order) string {
	return fmt.Sprintf("CARSU|%d|%s", o.ID, o.PickupCode)
}

// RenderInvoice writes a one-page PDF receipt for o.
func RenderInvoice(o models.Order) ([]byte, error) {
	qrPNG, err := qrcode.Encode(PickupPayload(o), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("generate QR code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "CarSUcart Receipt")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Order #%d", o.ID))
	pdf.Ln(6)
	pdf.Cell(0, 8, "Date: "+o.OrderDate.Format("2006-01-02 15:04"))
	pdf.Ln(6)
	pdf.Cell(0, 8, "Status: "+string(o.Status))
	pdf.Ln(6)
	pdf.Cell(0, 8, "Ship to: "+o.ShippingAddress)
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(90, 8, "Item", "B", 0, "", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, it := range o.Items {
		name := it.Name
		if it.Variant != "" {
			name += " (" + it.Variant + ")"
		}
		pdf.CellFormat(90, 7, name, "", 0, "", false, 0, "")
		pdf.CellFormat(20, 7, strconv.Itoa(it.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, money(it.Price), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, money(it.Subtotal), "", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	if o.Discount > 0 {
		pdf.CellFormat(140, 7, "Discount ("+o.CouponCode+")", "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, "-"+money(o.Discount), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(140, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, money(o.TotalAmount), "T", 1, "R", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Pickup code: "+o.PickupCode)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 20, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func money(v float64) string {
	return "PHP " + strconv.FormatFloat(v, 'f', 2, 64)
}

// GET /orders/:id/invoice
func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	order, ok := h.loadVisible(w, r, ps)
	if !ok {
		return
	}

	pdf, err := RenderInvoice(order)
	if err != nil {
		h.log.Error("render invoice", zap.Int64("order", order.ID), zap.Error(err))
		http.Error(w, "Failed to generate PDF", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=order-%d.pdf", order.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
