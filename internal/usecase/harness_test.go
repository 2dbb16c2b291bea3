package usecase_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"contractseal/internal/domain"
	"contractseal/internal/infra/artifacts"
	"contractseal/internal/infra/memstore"
	"contractseal/internal/usecase"
)

const testSecret = "test-hashing-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// textRenderer lists fields in key order; good enough to exercise hashing.
type textRenderer struct{}

func (textRenderer) Render(ctx context.Context, contractID string, fields map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := &bytes.Buffer{}
	buf.WriteString("CONTRACT " + contractID + "\n")
	for _, k := range keys {
		buf.WriteString(k + ": " + fields[k] + "\n")
	}
	return buf.Bytes(), nil
}

var sealMarker = []byte("\n%%SEAL ")

// trailerSealer appends the embedded signature as a JSON trailer.
type trailerSealer struct{}

func (trailerSealer) Embed(ctx context.Context, original []byte, sig usecase.EmbeddedSignature) ([]byte, error) {
	raw, err := json.Marshal(sig)
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, original...)
	out = append(out, sealMarker...)
	return append(out, raw...), nil
}

func (trailerSealer) Extract(ctx context.Context, signed []byte) (*usecase.EmbeddedSignature, error) {
	idx := bytes.LastIndex(signed, sealMarker)
	if idx < 0 {
		return nil, errors.New("no seal")
	}
	var sig usecase.EmbeddedSignature
	if err := json.Unmarshal(signed[idx+len(sealMarker):], &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

type harness struct {
	t         *testing.T
	clock     *testClock
	store     *memstore.Store
	artifacts *artifacts.Store
	root      string
	engine    *usecase.HashingEngine
	audit     *usecase.AuditLogger
	verifier  *usecase.VerificationService
	workflow  *usecase.SigningWorkflow
	tokens    *usecase.AccessTokenIssuer
	logs      *bytes.Buffer
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	roots []string
	uow   func(*memstore.Store) usecase.UnitOfWork
	audit usecase.AuditEventRepository
}

func withRoots(roots ...string) harnessOption {
	return func(c *harnessConfig) { c.roots = roots }
}

func withUnitOfWork(fn func(*memstore.Store) usecase.UnitOfWork) harnessOption {
	return func(c *harnessConfig) { c.uow = fn }
}

func withAuditRepo(repo usecase.AuditEventRepository) harnessOption {
	return func(c *harnessConfig) { c.audit = repo }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &harness{t: t, clock: newTestClock(), logs: &bytes.Buffer{}}
	if cfg.roots == nil {
		h.root = t.TempDir()
		cfg.roots = []string{h.root}
	}
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: h.logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h.store = memstore.NewWithClock(h.clock.Now)
	var uow usecase.UnitOfWork = h.store
	if cfg.uow != nil {
		uow = cfg.uow(h.store)
	}
	var auditRepo usecase.AuditEventRepository = h.store
	if cfg.audit != nil {
		auditRepo = cfg.audit
	}

	engine, err := usecase.NewHashingEngine(testSecret, h.clock.Now, logger)
	if err != nil {
		t.Fatalf("hashing engine: %v", err)
	}
	h.engine = engine
	h.artifacts = artifacts.New(context.Background(), artifacts.NewFSBackend(), artifacts.Options{
		Roots:   cfg.roots,
		Workers: 2,
		Logger:  logger,
	})
	h.audit = usecase.NewAuditLogger(auditRepo, h.clock.Now)
	h.verifier = usecase.NewVerificationService(uow, engine, h.audit, h.clock.Now, logger)
	h.workflow = &usecase.SigningWorkflow{
		Store:     uow,
		Artifacts: h.artifacts,
		Renderer:  textRenderer{},
		Sealer:    trailerSealer{},
		Engine:    engine,
		Verifier:  h.verifier,
		Audit:     h.audit,
		Clock:     h.clock.Now,
		Logger:    logger,
	}
	h.tokens = usecase.NewAccessTokenIssuer(h.store, h.audit, h.clock.Now)
	return h
}

// sign persists a signature record for content the way the workflow does.
func (h *harness) sign(contractID string, content []byte) domain.SignatureRecord {
	h.t.Helper()
	var rec domain.SignatureRecord
	err := h.store.WithTx(context.Background(), func(tx usecase.Tx) error {
		var err error
		rec, err = h.engine.GenerateSignature(context.Background(), tx, contractID, content, nil)
		return err
	})
	if err != nil {
		h.t.Fatalf("generate signature: %v", err)
	}
	return rec
}

func (h *harness) register(contractID string, parties ...string) {
	h.t.Helper()
	_, err := h.workflow.Register(context.Background(), contractID, parties, map[string]string{
		"rent":     "5,000,000 VND/month",
		"landlord": "landlord-1",
		"tenant":   "u42",
	})
	if err != nil {
		h.t.Fatalf("register: %v", err)
	}
}

func (h *harness) contract(contractID string) *domain.Contract {
	h.t.Helper()
	c, err := h.store.GetContract(context.Background(), contractID)
	if err != nil {
		h.t.Fatalf("get contract: %v", err)
	}
	return c
}

func (h *harness) events(contractID string) []domain.AuditEvent {
	h.t.Helper()
	events, err := h.store.ListByStream(context.Background(), contractID)
	if err != nil {
		h.t.Fatalf("list audit: %v", err)
	}
	return events
}

func countEvents(events []domain.AuditEvent, eventType domain.AuditEventType) int {
	n := 0
	for _, e := range events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type lockedWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type failingAuditRepo struct{ err error }

func (f failingAuditRepo) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	return domain.AuditEvent{}, f.err
}

func (f failingAuditRepo) ListByStream(ctx context.Context, streamID string) ([]domain.AuditEvent, error) {
	return nil, nil
}
