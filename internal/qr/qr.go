// Package qr renders QR code images for short URLs. Rendering is best-effort
// throughout the service layer: a failure here never fails link creation.
package qr

import (
	"fmt"

	"github.com/shammaa/url-shortener/internal/config"
	qrcode "github.com/skip2/go-qrcode"
)

type Renderer struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewRenderer(cfg config.QRCode) *Renderer {
	return &Renderer{
		size:  cfg.Size,
		level: recoveryLevel(cfg.Level),
	}
}

// Render returns a PNG image of the given URL at the configured size.
func (r *Renderer) Render(url string) ([]byte, error) {
	const op = "qr.Renderer.Render"

	png, err := qrcode.Encode(url, r.level, r.size)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode qr code: %w", op, err)
	}

	return png, nil
}

func recoveryLevel(level string) qrcode.RecoveryLevel {
	switch level {
	case "L":
		return qrcode.Low
	case "Q":
		return qrcode.High
	case "H":
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}
