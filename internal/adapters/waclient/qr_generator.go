package waclient

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"

	"wabridge/platform/logger"
)

// QRGenerator produz representações de QR codes de pareamento
type QRGenerator struct {
	logger          *logger.Logger
	displayTerminal bool
}

// NewQRGenerator cria nova instância do gerador de QR code
func NewQRGenerator(log *logger.Logger, displayTerminal bool) *QRGenerator {
	return &QRGenerator{
		logger:          log.WithModule("qr-generator"),
		displayTerminal: displayTerminal,
	}
}

// GenerateImage gera o QR code como data URI PNG em base64
func (g *QRGenerator) GenerateImage(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	img := qr.Image(256)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode QR code image: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	g.logger.DebugWithFields("QR code image generated", map[string]interface{}{
		"image_size": len(encoded),
	})

	return "data:image/png;base64," + encoded, nil
}

// DisplayTerminal imprime o QR code no terminal para pareamento local
func (g *QRGenerator) DisplayTerminal(data, accountID string) {
	if !g.displayTerminal {
		return
	}

	fmt.Printf("\nQR code for account %s:\n", accountID)
	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	fmt.Println()
}
