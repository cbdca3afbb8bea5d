package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/online-cinema/internal/email"
	"github.com/iliyamo/online-cinema/internal/payment"
	"github.com/iliyamo/online-cinema/internal/repository"
	"github.com/iliyamo/online-cinema/internal/utils"
)

type sentMail struct {
	tmpl email.Template
	to   string
	data map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, tmpl email.Template, to string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{tmpl: tmpl, to: to, data: data})
	return m.err
}

// last returns the most recent mail of tmpl.
func (m *fakeMailer) last(t *testing.T, tmpl email.Template) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].tmpl == tmpl {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", tmpl)
	return sentMail{}
}

func (m *fakeMailer) count(tmpl email.Template) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.tmpl == tmpl {
			n++
		}
	}
	return n
}

type fakeBlacklist struct {
	jtis map[string]time.Duration
}

func (b *fakeBlacklist) Add(_ context.Context, jti string, ttl time.Duration) error {
	if b.jtis == nil {
		b.jtis = map[string]time.Duration{}
	}
	b.jtis[jti] = ttl
	return nil
}

type published struct {
	queue string
	v     any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) PublishJSON(_ context.Context, queue string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{queue: queue, v: v})
	return nil
}

// fakeGateway parses webhook payloads that are JSON encoded payment.Event
// values signed with the literal signature "valid".  Sessions are named
// cs_1, cs_2 and so on.
type fakeGateway struct {
	mu        sync.Mutex
	requests  []payment.IntentRequest
	refunds   []string
	intentErr error
	refundErr error
	delay     time.Duration
	// onRefund runs after a refund was accepted, outside the lock.
	onRefund  func(extID string)
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.Session, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return payment.Session{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.intentErr != nil {
		return payment.Session{}, g.intentErr
	}
	g.requests = append(g.requests, req)
	id := fmt.Sprintf("cs_%d", len(g.requests))
	return payment.Session{ID: id, URL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) ParseEvent(payload []byte, sig string) (payment.Event, error) {
	if sig != "valid" {
		return payment.Event{}, payment.ErrInvalidSignature
	}
	var ev payment.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return payment.Event{}, err
	}
	if ev.Kind != payment.EventIgnored && ev.OrderID == 0 {
		return ev, errors.New("event carries no order id")
	}
	return ev, nil
}

func (g *fakeGateway) Refund(_ context.Context, extID string) error {
	g.mu.Lock()
	if g.refundErr != nil {
		g.mu.Unlock()
		return g.refundErr
	}
	g.refunds = append(g.refunds, extID)
	hook := g.onRefund
	g.mu.Unlock()
	if hook != nil {
		hook(extID)
	}
	return nil
}

func eventPayload(t *testing.T, ev payment.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

// racingStore makes the first failing transactions report a lost race on
// the (user, purpose) index, or err when set.
type racingStore struct {
	Store
	failures int
	calls    int
	err      error
}

func (s *racingStore) WithinTx(ctx context.Context, fn func(repository.Tx) error) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		if s.err != nil {
			return s.err
		}
		return ErrDuplicateToken
	}
	return s.Store.WithinTx(ctx, fn)
}

type env struct {
	store    *memStore
	mail     *fakeMailer
	black    *fakeBlacklist
	events   *fakePublisher
	gateway  *fakeGateway
	codec    *utils.TokenCodec
	ledger   *Ledger
	sessions *Sessions
	orders   *Orders
	payments *Payments
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		ActivationTTL: 24 * time.Hour,
		ResetTTL:      time.Hour,
		BcryptCost:    bcrypt.MinCost,
		AppURL:        "http://app.test",
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:   newMemStore(),
		mail:    &fakeMailer{},
		black:   &fakeBlacklist{},
		events:  &fakePublisher{},
		gateway: &fakeGateway{},
		codec:   utils.NewTokenCodec("access-secret", "refresh-secret"),
		ledger:  NewLedger(),
	}
	log := zap.NewNop()
	e.sessions = NewSessions(e.store, e.ledger, e.codec, e.mail, e.black, testSessionConfig(), log)
	e.orders = NewOrders(e.store, log)
	e.payments = NewPayments(e.store, e.gateway, e.mail, e.events,
		PaymentsConfig{GatewayTimeout: time.Second, EventQueue: "payment_events"}, log)
	return e
}

// activeUser registers and activates a user and returns its id.
func (e *env) activeUser(t *testing.T, addr string) uint64 {
	t.Helper()
	ctx := context.Background()
	u, err := e.sessions.Register(ctx, addr, "Secret#123")
	require.NoError(t, err)
	raw := e.mail.last(t, email.Activation).data["token"].(string)
	require.NoError(t, e.sessions.Activate(ctx, addr, raw))
	return u.ID
}
