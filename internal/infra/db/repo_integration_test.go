//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"contractseal/internal/domain"
	"contractseal/internal/usecase"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestContractRepository_CreateUpdateVersion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := "c-" + uuid.NewString()

	err := store.WithTx(ctx, func(tx usecase.Tx) error {
		return tx.Contracts().Create(ctx, domain.Contract{
			ID:      id,
			Parties: []string{"landlord-1", "u42"},
			Fields:  map[string]string{"rent": "5,000,000 VND/month"},
		})
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.GetContract(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusUnsigned || got.Version != 1 || got.Fields["rent"] != "5,000,000 VND/month" || len(got.Parties) != 2 {
		t.Fatalf("unexpected contract: %+v", got)
	}

	err = store.WithTx(ctx, func(tx usecase.Tx) error {
		c, err := tx.Contracts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		c.Status = domain.StatusPendingSignature
		_, err = tx.Contracts().Update(ctx, *c, c.Version)
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = store.WithTx(ctx, func(tx usecase.Tx) error {
		_, err := tx.Contracts().Update(ctx, *got, 1)
		return err
	})
	if !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("stale version must fail with ErrPrecondition, got %v", err)
	}
	if _, err := store.GetContract(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := "c-" + uuid.NewString()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx usecase.Tx) error {
		if err := tx.Contracts().Create(ctx, domain.Contract{ID: id}); err != nil {
			return err
		}
		if _, err := tx.Signatures().Append(ctx, domain.SignatureRecord{
			ContractID: id, Hash: "h", HMAC: "m", SignedAt: time.Now(), ExpiresAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if _, err := store.GetContract(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("contract should be rolled back, got %v", err)
	}
	recs, err := store.ListSignatures(ctx, id)
	if err != nil || len(recs) != 0 {
		t.Fatalf("signature should be rolled back: %v %d", err, len(recs))
	}
}

func TestSignatureRepository_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := "c-" + uuid.NewString()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		err := store.WithTx(ctx, func(tx usecase.Tx) error {
			rec, err := tx.Signatures().Append(ctx, domain.SignatureRecord{
				ContractID: id,
				Hash:       "hash",
				HMAC:       "hmac",
				SignedAt:   base.Add(time.Duration(i) * time.Minute),
				ExpiresAt:  base.Add(domain.SignatureValidity),
			})
			ids = append(ids, rec.ID)
			return err
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	list, err := store.FindSignatures(ctx, id, "hash")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(list) != 3 || list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %+v", list)
	}
}

func TestArtifactRepository_Versions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := "c-" + uuid.NewString()

	for want := 1; want <= 2; want++ {
		err := store.WithTx(ctx, func(tx usecase.Tx) error {
			v, err := tx.Artifacts().NextVersion(ctx, id, domain.ArtifactOriginal)
			if err != nil {
				return err
			}
			if v != want {
				t.Fatalf("next version: got %d want %d", v, want)
			}
			_, err = tx.Artifacts().Append(ctx, domain.ContractArtifact{
				ContractID: id, Kind: domain.ArtifactOriginal, Location: id + "/original", Hash: "h", Version: v,
			})
			return err
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	err := store.WithTx(ctx, func(tx usecase.Tx) error {
		_, err := tx.Artifacts().Append(ctx, domain.ContractArtifact{
			ContractID: id, Kind: domain.ArtifactOriginal, Location: id + "/dup", Hash: "h", Version: 1,
		})
		return err
	})
	if !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("duplicate version must fail with ErrPrecondition, got %v", err)
	}
}

func TestAuditEventRepository_HashChain(t *testing.T) {
	store := setupTestStore(t)
	repo := NewAuditEventRepository(store.DB)
	ctx := context.Background()
	stream := "c-" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(ctx, domain.AuditEvent{
				StreamID:  stream,
				EventType: domain.AuditEventSignatureVerified,
				Action:    domain.AuditActionVerify,
				Payload:   map[string]any{"n": i, "contract_id": stream, "outcome": "VALID"},
				ActorType: domain.AuditActorSystem,
				Result:    domain.AuditResultSuccess,
				Outcome:   domain.OutcomeValid,
			})
			if err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if err := usecase.VerifyContractAuditChain(ctx, repo, stream); err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	events, err := repo.ListByStream(ctx, stream)
	if err != nil || len(events) != 8 {
		t.Fatalf("expected 8 events: %v %d", err, len(events))
	}

	err = store.DB.Exec("UPDATE audit_events SET result = 'failure' WHERE stream_id = ?", stream).Error
	if err == nil || !strings.Contains(err.Error(), "append-only") {
		t.Fatalf("audit rows must be immutable, got %v", err)
	}
}

func TestAccessTokenRepository(t *testing.T) {
	store := setupTestStore(t)
	repo := NewAccessTokenRepository(store.DB)
	ctx := context.Background()
	hash := usecase.HashAccessToken(uuid.NewString())
	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, domain.AccessToken{TokenHash: hash, ContractID: "c1", CreatedAt: time.Now(), ExpiresAt: &expires}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, domain.AccessToken{TokenHash: hash, ContractID: "c1", CreatedAt: time.Now()}); !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("duplicate token must fail, got %v", err)
	}
	got, err := repo.GetByHash(ctx, hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContractID != "c1" || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected token %+v", got)
	}
	if _, err := repo.GetByHash(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	gdb, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, gdb)
	store := New(gdb, nil)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	resetDB(t, gdb)
	return store
}

func lockTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(987654321)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(987654321)")
		_ = conn.Close()
	})
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`
		TRUNCATE contracts,
			signature_records,
			contract_artifacts,
			audit_events,
			contract_audit_seq,
			access_tokens
		RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
