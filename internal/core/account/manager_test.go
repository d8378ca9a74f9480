package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/platform/logger"
)

// ===== FAKES =====

type sentText struct {
	target string
	body   string
}

type sentMedia struct {
	target   string
	data     []byte
	mimetype string
	filename string
	caption  string
}

type fakeAdapter struct {
	mu           sync.Mutex
	connectErr   error
	connected    bool
	disconnected bool
	loggedOut    bool
	texts        []sentText
	media        []sentMedia
}

func (a *fakeAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connectErr != nil {
		return a.connectErr
	}
	a.connected = true
	return nil
}

func (a *fakeAdapter) SendText(ctx context.Context, target, body string) (*SendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, sentText{target: target, body: body})
	return &SendResult{MessageID: "msg-1", Timestamp: time.Now()}, nil
}

func (a *fakeAdapter) SendMedia(ctx context.Context, target string, data []byte, mimetype, filename, caption string) (*SendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.media = append(a.media, sentMedia{target: target, data: data, mimetype: mimetype, filename: filename, caption: caption})
	return &SendResult{MessageID: "msg-2", Timestamp: time.Now()}, nil
}

func (a *fakeAdapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnected = true
	a.connected = false
}

func (a *fakeAdapter) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggedOut = true
	a.connected = false
	return nil
}

func (a *fakeAdapter) isLive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected && !a.disconnected
}

type fakeFactory struct {
	mu        sync.Mutex
	createErr error
	created   []*fakeAdapter
}

func (f *fakeFactory) NewAdapter(ctx context.Context, accountID string, sink EventSink) (Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	adapter := &fakeAdapter{}
	f.created = append(f.created, adapter)
	return adapter, nil
}

func (f *fakeFactory) liveAdapters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := 0
	for _, a := range f.created {
		if a.isLive() {
			live++
		}
	}
	return live
}

type fakeStatusSink struct {
	mu      sync.Mutex
	updates []StatusUpdate
}

func (s *fakeStatusSink) PushStatus(ctx context.Context, update *StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, *update)
}

func (s *fakeStatusSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.updates))
	for _, u := range s.updates {
		out = append(out, u.Status)
	}
	return out
}

type fakeMessageSink struct {
	mu        sync.Mutex
	err       error
	envelopes []MessageEnvelope
}

func (s *fakeMessageSink) ForwardMessage(ctx context.Context, envelope *MessageEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, *envelope)
	return s.err
}

func (s *fakeMessageSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.envelopes)
}

type fakeFetcher struct {
	data     []byte
	mimetype string
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.mimetype, nil
}

type fakeRepo struct {
	mu      sync.Mutex
	saved   map[string]bool
	devices map[string]string
	deleted []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		saved:   make(map[string]bool),
		devices: make(map[string]string),
	}
}

func (r *fakeRepo) Save(ctx context.Context, accountID, referencePhone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[accountID] = true
	return nil
}

func (r *fakeRepo) SetDeviceJID(ctx context.Context, accountID, deviceJID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[accountID] = deviceJID
	return nil
}

func (r *fakeRepo) GetDeviceJID(ctx context.Context, accountID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[accountID], nil
}

func (r *fakeRepo) Delete(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, accountID)
	r.deleted = append(r.deleted, accountID)
	return nil
}

func (r *fakeRepo) ListAccountIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.saved))
	for id := range r.saved {
		ids = append(ids, id)
	}
	return ids, nil
}

type managerFixture struct {
	manager     *Manager
	factory     *fakeFactory
	repo        *fakeRepo
	statusSink  *fakeStatusSink
	messageSink *fakeMessageSink
	fetcher     *fakeFetcher
}

func newFixture(t *testing.T) *managerFixture {
	t.Helper()

	f := &managerFixture{
		factory:     &fakeFactory{},
		repo:        newFakeRepo(),
		statusSink:  &fakeStatusSink{},
		messageSink: &fakeMessageSink{},
		fetcher:     &fakeFetcher{data: []byte("media-bytes"), mimetype: "image/png"},
	}
	f.manager = NewManager(
		f.factory,
		f.repo,
		f.statusSink,
		f.messageSink,
		f.fetcher,
		logger.New(logger.TestConfig()),
		ManagerConfig{TeardownGrace: 10 * time.Millisecond, QRTTL: 2 * time.Minute},
	)
	return f
}

// ===== TESTES =====

func TestStatusUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Status("never-initialized")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Empty(t, f.manager.AllStatuses())
}

func TestInitializeStartsInitializing(t *testing.T) {
	f := newFixture(t)

	snap, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusInitializing, snap.Status)
	assert.False(t, snap.IsReady)

	got, err := f.manager.Status("acc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInitializing, got.Status)
}

func TestInitializeWithReferencePhone(t *testing.T) {
	f := newFixture(t)

	snap, err := f.manager.Initialize(context.Background(), "acc-1", "+55 11 99999-0000")
	require.NoError(t, err)
	require.NotNil(t, snap.ReferencePhone)
	assert.Equal(t, "+55 11 99999-0000", *snap.ReferencePhone)
}

func TestInitializeAdapterFailure(t *testing.T) {
	f := newFixture(t)
	f.factory.createErr = errors.New("engine cannot launch")

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.Error(t, err)

	snap, err := f.manager.Status("acc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, snap.Status)
	require.NotNil(t, snap.LastError)
}

func TestQRThenReadyLifecycle(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	f.manager.OnQR("acc-1", "QR1", "data:image/png;base64,xxx")

	snap, err := f.manager.Status("acc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusQRGenerated, snap.Status)
	require.NotNil(t, snap.QRCode)
	assert.Equal(t, "QR1", *snap.QRCode)
	require.NotNil(t, snap.QRExpiresAt)

	f.manager.OnReady("acc-1", "966512345678")

	snap, err = f.manager.Status("acc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, snap.Status)
	assert.True(t, snap.IsReady)
	assert.Nil(t, snap.QRCode)
	require.NotNil(t, snap.ResolvedPhone)
	assert.Equal(t, "966512345678", *snap.ResolvedPhone)

	assert.Eventually(t, func() bool {
		statuses := f.statusSink.statuses()
		return len(statuses) == 2 && statuses[0] == "WAITING" && statuses[1] == "CONNECTED"
	}, time.Second, 10*time.Millisecond)
}

func TestAuthenticatedKeepsPhoneUnresolved(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	f.manager.OnAuthenticated("acc-1", "966512345678")

	snap, err := f.manager.Status("acc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.Nil(t, snap.ResolvedPhone)

	f.manager.OnReady("acc-1", "966512345678")

	snap, err = f.manager.Status("acc-1")
	require.NoError(t, err)
	require.NotNil(t, snap.ResolvedPhone)
	assert.Equal(t, "966512345678", *snap.ResolvedPhone)
}

func TestAuthFailureCollapsesToDisconnected(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	f.manager.OnAuthFailure("acc-1", "credentials rejected")

	snap, err := f.manager.Status("acc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthFailed, snap.Status)
	require.NotNil(t, snap.LastError)

	assert.Eventually(t, func() bool {
		statuses := f.statusSink.statuses()
		return len(statuses) == 1 && statuses[0] == "DISCONNECTED"
	}, time.Second, 10*time.Millisecond)
}

func TestSendRequiresConnected(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Send(context.Background(), &SendMessageInput{
		AccountID:   "ghost",
		PhoneNumber: "5511999990000",
		Body:        "hi",
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	// INITIALIZING, QR_GENERATED e AUTH_FAILED nunca deixam enviar
	for _, setup := range []func(){
		func() {},
		func() { f.manager.OnQR("acc-1", "QR1", "") },
		func() { f.manager.OnAuthFailure("acc-1", "nope") },
	} {
		setup()
		_, err = f.manager.Send(context.Background(), &SendMessageInput{
			AccountID:   "acc-1",
			PhoneNumber: "5511999990000",
			Body:        "hi",
		})
		assert.ErrorIs(t, err, ErrAccountNotReady)
	}
}

func TestSendResolvesTargets(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnReady("acc-1", "966512345678")

	result, err := f.manager.Send(context.Background(), &SendMessageInput{
		AccountID:   "acc-1",
		PhoneNumber: "(11) 99999-0000",
		Body:        "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "11999990000@s.whatsapp.net", result.ChatID)

	result, err = f.manager.Send(context.Background(), &SendMessageInput{
		AccountID: "acc-1",
		ChatID:    "xyz@g.us",
		Body:      "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "xyz@g.us", result.ChatID)

	adapter := f.factory.created[0]
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	require.Len(t, adapter.texts, 2)
	assert.Equal(t, "11999990000@s.whatsapp.net", adapter.texts[0].target)
	assert.Equal(t, "xyz@g.us", adapter.texts[1].target)
}

func TestSendMediaUsesFetchedBytes(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnReady("acc-1", "966512345678")

	_, err = f.manager.Send(context.Background(), &SendMessageInput{
		AccountID:   "acc-1",
		PhoneNumber: "0501234567",
		MediaURL:    "https://x/img.png",
	})
	require.NoError(t, err)

	adapter := f.factory.created[0]
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	assert.Empty(t, adapter.texts)
	require.Len(t, adapter.media, 1)
	assert.Equal(t, []byte("media-bytes"), adapter.media[0].data)
	assert.Equal(t, "image/png", adapter.media[0].mimetype)
	assert.Empty(t, adapter.media[0].caption)
}

func TestSendMediaFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("connection refused")

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnReady("acc-1", "966512345678")

	_, err = f.manager.Send(context.Background(), &SendMessageInput{
		AccountID:   "acc-1",
		PhoneNumber: "0501234567",
		MediaURL:    "https://x/img.png",
	})
	assert.ErrorIs(t, err, ErrMediaFetch)
}

func TestSendRejectsEmptyContent(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnReady("acc-1", "966512345678")

	_, err = f.manager.Send(context.Background(), &SendMessageInput{
		AccountID:   "acc-1",
		PhoneNumber: "0501234567",
	})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestInitializeIdempotentWhenConnected(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnReady("acc-1", "966512345678")

	snap, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, snap.Status)
	assert.Len(t, f.factory.created, 1)
}

func TestInitializeReplacesStaleAdapter(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnQR("acc-1", "QR1", "data:image/png;base64,xxx")

	snap, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusInitializing, snap.Status)

	require.Len(t, f.factory.created, 2)
	assert.False(t, f.factory.created[0].isLive())
	assert.True(t, f.factory.created[1].isLive())
	assert.Equal(t, 1, f.factory.liveAdapters())
}

func TestRestartReplacesAdapter(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnReady("acc-1", "966512345678")

	snap, err := f.manager.Restart(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInitializing, snap.Status)

	require.Len(t, f.factory.created, 2)
	assert.False(t, f.factory.created[0].isLive())
	assert.True(t, f.factory.created[1].isLive())
}

func TestConcurrentRestartsKeepSingleAdapter(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.manager.Restart(context.Background(), "acc-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.factory.liveAdapters())

	snaps := f.manager.AllStatuses()
	require.Len(t, snaps, 1)
	assert.Equal(t, "acc-1", snaps[0].AccountID)
}

func TestDisconnectRemovesAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)
	f.manager.OnReady("acc-1", "966512345678")

	require.NoError(t, f.manager.Disconnect(context.Background(), "acc-1"))

	_, err = f.manager.Status("acc-1")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	require.Len(t, f.factory.created, 1)
	assert.True(t, f.factory.created[0].loggedOut)
	assert.Contains(t, f.repo.deleted, "acc-1")

	// Eventos tardios do adapter derrubado são ignorados
	f.manager.OnDisconnected("acc-1", "late event")
	_, err = f.manager.Status("acc-1")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	err = f.manager.Disconnect(context.Background(), "acc-1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestOnMessageForwardsEnvelope(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	f.manager.OnMessage("acc-1", &MessageEnvelope{
		AccountID: "acc-1",
		MessageID: "m1",
		Type:      "text",
		Body:      "hello",
	})

	// Envelope sem mídia (download falhou) ainda é encaminhado
	f.manager.OnMessage("acc-1", &MessageEnvelope{
		AccountID: "acc-1",
		MessageID: "m2",
		Type:      "image",
		Media:     nil,
	})

	assert.Eventually(t, func() bool {
		return f.messageSink.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestForwardFailureDoesNotBlockNextMessages(t *testing.T) {
	f := newFixture(t)
	f.messageSink.err = errors.New("webhook down")

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f.manager.OnMessage("acc-1", &MessageEnvelope{
			AccountID: "acc-1",
			MessageID: fmt.Sprintf("m%d", i),
			Type:      "text",
		})
	}

	assert.Eventually(t, func() bool {
		return f.messageSink.count() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestRestoreAllReinitializesPersistedAccounts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Save(context.Background(), "acc-1", ""))
	require.NoError(t, f.repo.Save(context.Background(), "acc-2", ""))

	require.NoError(t, f.manager.RestoreAll(context.Background()))

	snaps := f.manager.AllStatuses()
	require.Len(t, snaps, 2)
	assert.Equal(t, "acc-1", snaps[0].AccountID)
	assert.Equal(t, "acc-2", snaps[1].AccountID)
	assert.Equal(t, 2, f.factory.liveAdapters())
}

func TestStopDisconnectsEverything(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initialize(context.Background(), "acc-1", "")
	require.NoError(t, err)

	f.manager.Stop()

	assert.Equal(t, 0, f.factory.liveAdapters())

	_, err = f.manager.Initialize(context.Background(), "acc-2", "")
	assert.ErrorIs(t, err, ErrManagerStopped)
}
