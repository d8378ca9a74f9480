package account

import (
	"regexp"
	"strings"
	"time"
)

// Status estados do ciclo de vida de uma conta WhatsApp
type Status string

const (
	StatusInitializing  Status = "INITIALIZING"
	StatusQRGenerated   Status = "QR_GENERATED"
	StatusAuthenticated Status = "AUTHENTICATED"
	StatusConnected     Status = "CONNECTED"
	StatusAuthFailed    Status = "AUTH_FAILED"
	StatusDisconnected  Status = "DISCONNECTED"
)

// External traduz o status interno para o vocabulário do sistema externo
func (s Status) External() string {
	switch s {
	case StatusQRGenerated:
		return "WAITING"
	case StatusConnected:
		return "CONNECTED"
	case StatusAuthFailed, StatusDisconnected:
		return "DISCONNECTED"
	default:
		return string(s)
	}
}

// Record estado vivo de uma conta gerenciada
type Record struct {
	AccountID      string     `json:"accountId"`
	ReferencePhone *string    `json:"referencePhone,omitempty"`
	Status         Status     `json:"status"`
	ResolvedPhone  *string    `json:"resolvedPhone,omitempty"`
	QRCode         *string    `json:"qrCode,omitempty"`
	QRImage        *string    `json:"qrImage,omitempty"`
	QRExpiresAt    *time.Time `json:"qrExpiresAt,omitempty"`
	LastError      *string    `json:"lastError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewRecord cria o registro inicial de uma conta
func NewRecord(accountID string) *Record {
	now := time.Now()
	return &Record{
		AccountID: accountID,
		Status:    StatusInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot cópia imutável do estado de uma conta, segura para serializar
type Snapshot struct {
	AccountID      string     `json:"accountId"`
	ReferencePhone *string    `json:"referencePhone,omitempty"`
	Status         Status     `json:"status"`
	IsReady        bool       `json:"isReady"`
	ResolvedPhone  *string    `json:"resolvedPhone,omitempty"`
	QRCode         *string    `json:"qrCode,omitempty"`
	QRImage        *string    `json:"qrImage,omitempty"`
	QRExpiresAt    *time.Time `json:"qrExpiresAt,omitempty"`
	LastError      *string    `json:"lastError,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (r *Record) snapshot() Snapshot {
	return Snapshot{
		AccountID:      r.AccountID,
		ReferencePhone: r.ReferencePhone,
		Status:         r.Status,
		IsReady:        r.Status == StatusConnected,
		ResolvedPhone:  r.ResolvedPhone,
		QRCode:         r.QRCode,
		QRImage:        r.QRImage,
		QRExpiresAt:    r.QRExpiresAt,
		LastError:      r.LastError,
		UpdatedAt:      r.UpdatedAt,
	}
}

// MediaPayload mídia baixada e codificada em base64
type MediaPayload struct {
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data"`
}

// LocationPayload coordenadas de uma mensagem de localização
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// MessageEnvelope mensagem recebida já normalizada, pronta para entrega.
// From é sempre o chat; Author é o indivíduo, mesmo dentro de grupos.
// ChatName carrega o assunto do grupo quando a conversa é um grupo.
type MessageEnvelope struct {
	AccountID string           `json:"accountId"`
	MessageID string           `json:"messageId"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Author    string           `json:"author,omitempty"`
	Timestamp int64            `json:"timestamp"`
	Type      string           `json:"type"`
	Body      string           `json:"body,omitempty"`
	FromMe    bool             `json:"fromMe"`
	IsGroup   bool             `json:"isGroup"`
	ChatName  string           `json:"chatName,omitempty"`
	PushName  string           `json:"pushName,omitempty"`
	Media     *MediaPayload    `json:"media,omitempty"`
	Location  *LocationPayload `json:"location,omitempty"`
}

// StatusUpdate transição de status notificada ao sistema externo
type StatusUpdate struct {
	AccountID string    `json:"accountId"`
	Status    string    `json:"status"`
	QRCode    string    `json:"qrCode,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SendMessageInput dados para envio de mensagem.
// ChatID tem precedência sobre PhoneNumber na resolução do destino.
type SendMessageInput struct {
	AccountID   string `json:"accountId" validate:"required"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
	Body        string `json:"message,omitempty"`
	MediaURL    string `json:"mediaUrl,omitempty" validate:"omitempty,url"`
	Mimetype    string `json:"mimetype,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// Target resolve o destino do envio respeitando a precedência
// chatId explícito > identificador com sufixo > normalização de telefone
func (in *SendMessageInput) Target() (string, error) {
	if strings.TrimSpace(in.ChatID) != "" {
		return strings.TrimSpace(in.ChatID), nil
	}
	return ResolveTarget(in.PhoneNumber)
}

// SendResult resultado de um envio bem sucedido
type SendResult struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	DefaultUserServer = "s.whatsapp.net"
	GroupServer       = "g.us"
	BroadcastServer   = "broadcast"
)

var nonDigits = regexp.MustCompile(`\D`)

// ResolveTarget normaliza o destino de um envio.
// Valores contendo "@" são tratados como JID completo; números de telefone
// são limpos e recebem o servidor padrão de usuários.
func ResolveTarget(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidTarget
	}

	if strings.Contains(trimmed, "@") {
		parts := strings.SplitN(trimmed, "@", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", ErrInvalidTarget
		}
		return trimmed, nil
	}

	digits := nonDigits.ReplaceAllString(trimmed, "")
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidTarget
	}
	return digits + "@" + DefaultUserServer, nil
}

// IsGroupTarget indica se o destino resolvido é um grupo
func IsGroupTarget(target string) bool {
	return strings.HasSuffix(target, "@"+GroupServer)
}
