package services

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
)

// Payment builds the Wave redirect for an order total. Nothing is charged
// here; the provider page takes over from the link.
type Payment struct {
	baseURL string
}

func NewPayment(baseURL string) *Payment {
	return &Payment{baseURL: baseURL}
}

// WaveLink is <base>?amount=<total>.
func (p *Payment) WaveLink(total int) string {
	q := url.Values{}
	q.Set("amount", strconv.Itoa(total))
	return p.baseURL + "?" + q.Encode()
}

// WaveQR renders the Wave link as a PNG.
func (p *Payment) WaveQR(total int) ([]byte, error) {
	png, err := qrcode.Encode(p.WaveLink(total), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("payment: qr code: %w", err)
	}
	return png, nil
}

// WaveQRDataURI is the PNG as a data: URI ready for an <img> tag.
func (p *Payment) WaveQRDataURI(total int) (string, error) {
	png, err := p.WaveQR(total)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
