package account

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wabridge/platform/logger"
)

// Manager coordena o ciclo de vida de múltiplas contas WhatsApp.
// É o único dono do registro accountId -> (Record, Adapter); implementa
// EventSink para que os adapters reportem transições de volta.
//
// Operações sobre a mesma conta são serializadas por um mutex por conta;
// contas distintas progridem em paralelo.
type Manager struct {
	factory     AdapterFactory
	repo        Repository
	statusSink  StatusSink
	messageSink MessageSink
	fetcher     MediaFetcher
	logger      *logger.Logger
	cfg         ManagerConfig

	mu       sync.RWMutex
	records  map[string]*Record
	adapters map[string]Adapter

	opMu sync.Mutex
	ops  map[string]*sync.Mutex

	stopMu  sync.Mutex
	stopped bool

	pushes sync.WaitGroup
}

// NewManager cria um Manager com todas as dependências injetadas
func NewManager(
	factory AdapterFactory,
	repo Repository,
	statusSink StatusSink,
	messageSink MessageSink,
	fetcher MediaFetcher,
	log *logger.Logger,
	cfg ManagerConfig,
) *Manager {
	if cfg.TeardownGrace <= 0 {
		cfg.TeardownGrace = DefaultManagerConfig().TeardownGrace
	}
	if cfg.QRTTL <= 0 {
		cfg.QRTTL = DefaultManagerConfig().QRTTL
	}
	return &Manager{
		factory:     factory,
		repo:        repo,
		statusSink:  statusSink,
		messageSink: messageSink,
		fetcher:     fetcher,
		logger:      log.WithModule("account-manager"),
		cfg:         cfg,
		records:     make(map[string]*Record),
		adapters:    make(map[string]Adapter),
		ops:         make(map[string]*sync.Mutex),
	}
}

// accountLock retorna o mutex de operações de uma conta, criando-o se preciso
func (m *Manager) accountLock(accountID string) *sync.Mutex {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	lock, ok := m.ops[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.ops[accountID] = lock
	}
	return lock
}

func (m *Manager) isStopped() bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	return m.stopped
}

// Initialize registra e conecta uma conta. É idempotente quando a conta
// já está CONNECTED: retorna o registro existente sem tocar no adapter.
func (m *Manager) Initialize(ctx context.Context, accountID, referencePhone string) (Snapshot, error) {
	if accountID == "" {
		return Snapshot{}, fmt.Errorf("%w: empty account id", ErrInvalidTarget)
	}
	if m.isStopped() {
		return Snapshot{}, ErrManagerStopped
	}

	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	rec, hasRecord := m.records[accountID]
	old, hasAdapter := m.adapters[accountID]
	var current Snapshot
	if hasRecord {
		current = rec.snapshot()
	}
	if hasRecord && hasAdapter && current.Status == StatusConnected {
		m.mu.Unlock()
		m.logger.InfoWithFields("Account already connected, initialize is a no-op", map[string]interface{}{
			"account_id": accountID,
		})
		return current, nil
	}
	delete(m.adapters, accountID)
	m.mu.Unlock()

	// Tentativa anterior parada (QR pendente, queda, falha de autenticação):
	// o adapter antigo precisa ser derrubado antes de abrir outro sobre as
	// mesmas credenciais.
	if hasAdapter {
		if err := m.teardown(ctx, old); err != nil {
			return Snapshot{}, err
		}
	}

	return m.startLocked(ctx, accountID, referencePhone)
}

// teardown desconecta um adapter e aguarda a liberação do armazenamento
// de credenciais antes de permitir um sucessor
func (m *Manager) teardown(ctx context.Context, adapter Adapter) error {
	adapter.Disconnect()
	select {
	case <-time.After(m.cfg.TeardownGrace):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart derruba o adapter atual (com período de graça para liberação de
// recursos) e inicializa novamente, reutilizando credenciais persistidas.
func (m *Manager) Restart(ctx context.Context, accountID string) (Snapshot, error) {
	if accountID == "" {
		return Snapshot{}, fmt.Errorf("%w: empty account id", ErrInvalidTarget)
	}
	if m.isStopped() {
		return Snapshot{}, ErrManagerStopped
	}

	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	var referencePhone string
	m.mu.Lock()
	if rec, ok := m.records[accountID]; ok && rec.ReferencePhone != nil {
		referencePhone = *rec.ReferencePhone
	}
	old, hadAdapter := m.adapters[accountID]
	delete(m.adapters, accountID)
	m.mu.Unlock()

	if hadAdapter {
		if err := m.teardown(ctx, old); err != nil {
			return Snapshot{}, err
		}
	} else {
		m.logger.WarnWithFields("Restart requested for account without live adapter", map[string]interface{}{
			"account_id": accountID,
		})
	}

	return m.startLocked(ctx, accountID, referencePhone)
}

// startLocked cria registro e adapter e dispara a conexão.
// Pressupõe o lock da conta já adquirido e nenhum adapter vivo para ela.
func (m *Manager) startLocked(ctx context.Context, accountID, referencePhone string) (Snapshot, error) {
	m.mu.Lock()
	rec, ok := m.records[accountID]
	if !ok {
		rec = NewRecord(accountID)
		m.records[accountID] = rec
	}
	rec.Status = StatusInitializing
	rec.QRCode = nil
	rec.QRImage = nil
	rec.QRExpiresAt = nil
	rec.LastError = nil
	if referencePhone != "" {
		rec.ReferencePhone = &referencePhone
	}
	rec.UpdatedAt = time.Now()
	snap := rec.snapshot()
	m.mu.Unlock()

	if err := m.repo.Save(ctx, accountID, referencePhone); err != nil {
		m.logger.ErrorWithFields("Failed to persist account", map[string]interface{}{
			"account_id": accountID,
			"error":      err.Error(),
		})
	}

	adapter, err := m.factory.NewAdapter(ctx, accountID, m)
	if err != nil {
		m.setFailure(accountID, err)
		return Snapshot{}, fmt.Errorf("failed to create adapter for account %s: %w", accountID, err)
	}

	m.mu.Lock()
	m.adapters[accountID] = adapter
	m.mu.Unlock()

	if err := adapter.Connect(ctx); err != nil {
		m.mu.Lock()
		delete(m.adapters, accountID)
		m.mu.Unlock()
		m.setFailure(accountID, err)
		return Snapshot{}, fmt.Errorf("failed to connect account %s: %w", accountID, err)
	}

	m.logger.InfoWithFields("Account initialization started", map[string]interface{}{
		"account_id": accountID,
	})
	return snap, nil
}

func (m *Manager) setFailure(accountID string, cause error) {
	msg := cause.Error()
	m.mutate(accountID, func(r *Record) {
		r.Status = StatusDisconnected
		r.LastError = &msg
	})
}

// Send envia uma mensagem por uma conta CONNECTED.
// Nunca inicializa contas implicitamente: conta desconhecida é erro.
func (m *Manager) Send(ctx context.Context, input *SendMessageInput) (*SendResult, error) {
	m.mu.RLock()
	rec, hasRecord := m.records[input.AccountID]
	adapter, hasAdapter := m.adapters[input.AccountID]
	var status Status
	if hasRecord {
		status = rec.Status
	}
	m.mu.RUnlock()

	if !hasRecord || !hasAdapter {
		return nil, ErrAccountNotFound
	}
	if status != StatusConnected {
		return nil, fmt.Errorf("%w: account %s is %s", ErrAccountNotReady, input.AccountID, status)
	}

	target, err := input.Target()
	if err != nil {
		return nil, err
	}
	if input.Body == "" && input.MediaURL == "" {
		return nil, ErrEmptyMessage
	}

	m.logger.DebugWithFields("Dispatching message", map[string]interface{}{
		"account_id": input.AccountID,
		"target":     target,
		"is_group":   IsGroupTarget(target),
		"has_media":  input.MediaURL != "",
	})

	if input.MediaURL != "" {
		data, mimetype, err := m.fetcher.Fetch(ctx, input.MediaURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMediaFetch, err)
		}
		if input.Mimetype != "" {
			mimetype = input.Mimetype
		}
		caption := input.Caption
		if caption == "" {
			caption = input.Body
		}
		result, err := adapter.SendMedia(ctx, target, data, mimetype, input.Filename, caption)
		if err != nil {
			return nil, err
		}
		result.ChatID = target
		return result, nil
	}

	result, err := adapter.SendText(ctx, target, input.Body)
	if err != nil {
		return nil, err
	}
	result.ChatID = target
	return result, nil
}

// Status retorna o snapshot de uma conta registrada
func (m *Manager) Status(accountID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[accountID]
	if !ok {
		return Snapshot{}, ErrAccountNotFound
	}
	return rec.snapshot(), nil
}

// AllStatuses retorna snapshots de todas as contas, ordenados por accountId
func (m *Manager) AllStatuses() []Snapshot {
	m.mu.RLock()
	snaps := make([]Snapshot, 0, len(m.records))
	for _, rec := range m.records {
		snaps = append(snaps, rec.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].AccountID < snaps[j].AccountID
	})
	return snaps
}

// Disconnect desliga a conta, invalida credenciais e remove o registro.
// Consultas de status subsequentes reportam conta inexistente.
func (m *Manager) Disconnect(ctx context.Context, accountID string) error {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	_, hasRecord := m.records[accountID]
	adapter, hasAdapter := m.adapters[accountID]
	delete(m.records, accountID)
	delete(m.adapters, accountID)
	m.mu.Unlock()

	if !hasRecord && !hasAdapter {
		return ErrAccountNotFound
	}

	if hasAdapter {
		if err := adapter.Logout(ctx); err != nil {
			m.logger.WarnWithFields("Logout failed during disconnect", map[string]interface{}{
				"account_id": accountID,
				"error":      err.Error(),
			})
			adapter.Disconnect()
		}
	}

	if err := m.repo.Delete(ctx, accountID); err != nil {
		m.logger.ErrorWithFields("Failed to delete persisted account", map[string]interface{}{
			"account_id": accountID,
			"error":      err.Error(),
		})
	}

	m.pushStatus(&StatusUpdate{
		AccountID: accountID,
		Status:    StatusDisconnected.External(),
		Reason:    "disconnect requested",
		Timestamp: time.Now(),
	})

	m.logger.InfoWithFields("Account disconnected and removed", map[string]interface{}{
		"account_id": accountID,
	})
	return nil
}

// RestoreAll reinicializa todas as contas persistidas.
// Chamado na subida do processo; falhas individuais não abortam as demais.
func (m *Manager) RestoreAll(ctx context.Context) error {
	ids, err := m.repo.ListAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted accounts: %w", err)
	}

	for _, id := range ids {
		if _, err := m.Initialize(ctx, id, ""); err != nil {
			m.logger.ErrorWithFields("Failed to restore account", map[string]interface{}{
				"account_id": id,
				"error":      err.Error(),
			})
		}
	}

	m.logger.InfoWithFields("Account restore completed", map[string]interface{}{
		"accounts": len(ids),
	})
	return nil
}

// Stop desconecta todos os adapters preservando credenciais e aguarda
// a drenagem das notificações pendentes
func (m *Manager) Stop() {
	m.stopMu.Lock()
	if m.stopped {
		m.stopMu.Unlock()
		return
	}
	m.stopped = true
	m.stopMu.Unlock()

	m.mu.Lock()
	adapters := make([]Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.adapters = make(map[string]Adapter)
	m.mu.Unlock()

	for _, a := range adapters {
		a.Disconnect()
	}

	m.pushes.Wait()
	m.logger.Info("Account manager stopped")
}

// ===== EVENT SINK =====
// O estado do registro é atualizado de forma síncrona ANTES de qualquer
// notificação externa, para que leituras concorrentes de status nunca
// observem estado anterior ao evento já entregue.

// mutate aplica fn ao registro, se existir, e retorna o snapshot resultante
func (m *Manager) mutate(accountID string, fn func(*Record)) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[accountID]
	if !ok {
		return Snapshot{}, false
	}
	fn(rec)
	rec.UpdatedAt = time.Now()
	return rec.snapshot(), true
}

// OnQR trata a emissão de um novo QR code de pareamento
func (m *Manager) OnQR(accountID, code, pngBase64 string) {
	expiresAt := time.Now().Add(m.cfg.QRTTL)
	snap, ok := m.mutate(accountID, func(r *Record) {
		r.Status = StatusQRGenerated
		r.QRCode = &code
		r.QRImage = &pngBase64
		r.QRExpiresAt = &expiresAt
	})
	if !ok {
		return
	}

	m.logger.InfoWithFields("QR code generated", map[string]interface{}{
		"account_id": accountID,
		"expires_at": expiresAt,
	})
	m.pushStatus(&StatusUpdate{
		AccountID: accountID,
		Status:    snap.Status.External(),
		QRCode:    code,
		Timestamp: time.Now(),
	})
}

// OnAuthenticated trata o pareamento bem sucedido.
// Transição transitória: não é publicada ao sistema externo e o telefone
// resolvido só passa a valer quando a conexão fica pronta.
func (m *Manager) OnAuthenticated(accountID, identity string) {
	_, ok := m.mutate(accountID, func(r *Record) {
		r.Status = StatusAuthenticated
	})
	if !ok {
		return
	}

	m.logger.InfoWithFields("Account authenticated", map[string]interface{}{
		"account_id": accountID,
		"identity":   identity,
	})
}

// OnReady trata a conexão pronta para uso
func (m *Manager) OnReady(accountID, identity string) {
	snap, ok := m.mutate(accountID, func(r *Record) {
		r.Status = StatusConnected
		r.QRCode = nil
		r.QRImage = nil
		r.QRExpiresAt = nil
		r.LastError = nil
		if identity != "" {
			r.ResolvedPhone = &identity
		}
	})
	if !ok {
		return
	}

	m.logger.InfoWithFields("Account connected", map[string]interface{}{
		"account_id": accountID,
		"identity":   identity,
	})
	m.pushStatus(&StatusUpdate{
		AccountID: accountID,
		Status:    snap.Status.External(),
		Phone:     identity,
		Timestamp: time.Now(),
	})
}

// OnAuthFailure trata rejeição de credenciais.
// O sink externo não distingue falha de autenticação: colapsa em DISCONNECTED.
func (m *Manager) OnAuthFailure(accountID, reason string) {
	snap, ok := m.mutate(accountID, func(r *Record) {
		r.Status = StatusAuthFailed
		r.QRCode = nil
		r.QRImage = nil
		r.QRExpiresAt = nil
		r.LastError = &reason
	})
	if !ok {
		return
	}

	m.logger.WarnWithFields("Account authentication failed", map[string]interface{}{
		"account_id": accountID,
		"reason":     reason,
	})
	m.pushStatus(&StatusUpdate{
		AccountID: accountID,
		Status:    snap.Status.External(),
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// OnDisconnected trata a queda da conexão
func (m *Manager) OnDisconnected(accountID, reason string) {
	snap, ok := m.mutate(accountID, func(r *Record) {
		r.Status = StatusDisconnected
		r.QRCode = nil
		r.QRImage = nil
		r.QRExpiresAt = nil
		if reason != "" {
			r.LastError = &reason
		}
	})
	if !ok {
		// Conta já removida por disconnect explícito; evento tardio ignorado.
		return
	}

	m.logger.WarnWithFields("Account disconnected", map[string]interface{}{
		"account_id": accountID,
		"reason":     reason,
	})
	m.pushStatus(&StatusUpdate{
		AccountID: accountID,
		Status:    snap.Status.External(),
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// OnMessage encaminha um envelope normalizado ao webhook externo
func (m *Manager) OnMessage(accountID string, envelope *MessageEnvelope) {
	if envelope == nil {
		return
	}

	m.pushes.Add(1)
	go func() {
		defer m.pushes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.messageSink.ForwardMessage(ctx, envelope); err != nil {
			m.logger.ErrorWithFields("Failed to forward message", map[string]interface{}{
				"account_id": accountID,
				"message_id": envelope.MessageID,
				"error":      err.Error(),
			})
		}
	}()
}

// pushStatus publica uma transição de status sem bloquear o chamador
func (m *Manager) pushStatus(update *StatusUpdate) {
	m.pushes.Add(1)
	go func() {
		defer m.pushes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		m.statusSink.PushStatus(ctx, update)
	}()
}
