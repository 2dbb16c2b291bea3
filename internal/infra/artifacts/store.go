package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"golang.org/x/sync/semaphore"

	"contractseal/internal/domain"
	"contractseal/internal/usecase"
)

var _ usecase.ArtifactStore = (*Store)(nil)

const defaultWorkers = 8

// Store is the versioned artifact store used by the signing workflow.
// Locations are object keys relative to the resolved root.
type Store struct {
	backend Backend
	res     Resolution
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

type Options struct {
	// Roots in preference order; the first writable one wins.
	Roots   []string
	Workers int
	Logger  *slog.Logger
}

func New(ctx context.Context, backend Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Store{
		backend: backend,
		res:     Resolve(ctx, backend, opts.Roots, logger),
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  logger,
	}
}

func (s *Store) Resolution() Resolution {
	res := s.res
	res.Attempted = slices.Clone(res.Attempted)
	res.Causes = slices.Clone(res.Causes)
	return res
}

// ObjectKey is the storage key of one artifact version.
func ObjectKey(contractID string, kind domain.ArtifactKind, version int) string {
	return fmt.Sprintf("%s/%s-v%d.pdf", contractID, strings.ToLower(string(kind)), version)
}

func (s *Store) Put(ctx context.Context, contractID string, kind domain.ArtifactKind, version int, data []byte) (string, error) {
	if err := s.usable(); err != nil {
		return "", err
	}
	if err := validContractID(contractID); err != nil {
		return "", err
	}
	if version < 1 {
		return "", fmt.Errorf("%w: artifact version must be positive", domain.ErrInvalidInput)
	}
	key := ObjectKey(contractID, kind, version)
	err := s.withSlot(ctx, func() error {
		return s.backend.Write(ctx, s.res.Root, key, data)
	})
	if err != nil {
		if errors.Is(err, ErrObjectExists) {
			return "", fmt.Errorf("%w: %s already stored", domain.ErrPrecondition, key)
		}
		return "", &domain.IOError{Op: "write", ContractID: contractID, Location: key, Err: err}
	}
	s.logger.Debug("artifact stored", "contract_id", contractID, "location", key, "size", len(data))
	return key, nil
}

func (s *Store) Get(ctx context.Context, contractID, location string) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if err := ownedBy(contractID, location); err != nil {
		return nil, err
	}
	var data []byte
	err := s.withSlot(ctx, func() error {
		var err error
		data, err = s.backend.Read(ctx, s.res.Root, location)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, location)
		}
		return nil, &domain.IOError{Op: "read", ContractID: contractID, Location: location, Err: err}
	}
	return data, nil
}

func (s *Store) Remove(ctx context.Context, contractID, location string) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := ownedBy(contractID, location); err != nil {
		return err
	}
	err := s.withSlot(ctx, func() error {
		return s.backend.Remove(ctx, s.res.Root, location)
	})
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return &domain.IOError{Op: "remove", ContractID: contractID, Location: location, Err: err}
	}
	return nil
}

// List returns the stored keys of every version of contractID's artifacts.
func (s *Store) List(ctx context.Context, contractID string) ([]string, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if err := validContractID(contractID); err != nil {
		return nil, err
	}
	var keys []string
	err := s.withSlot(ctx, func() error {
		var err error
		keys, err = s.backend.List(ctx, s.res.Root, contractID+"/")
		return err
	})
	if err != nil {
		return nil, &domain.IOError{Op: "list", ContractID: contractID, Location: contractID + "/", Err: err}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *Store) usable() error {
	if s.res.State == StateFailed {
		return &domain.StorageError{
			Attempted: slices.Clone(s.res.Attempted),
			Causes:    slices.Clone(s.res.Causes),
		}
	}
	return nil
}

func (s *Store) withSlot(ctx context.Context, fn func() error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn()
}

func validContractID(contractID string) error {
	return domain.ValidateContractID(contractID)
}

// ownedBy rejects locations outside the contract's own key prefix.
func ownedBy(contractID, location string) error {
	if err := validContractID(contractID); err != nil {
		return err
	}
	clean := path.Clean(location)
	if clean != location || !strings.HasPrefix(location, contractID+"/") || strings.Contains(location, "..") {
		return fmt.Errorf("%w: location %q does not belong to contract %s", domain.ErrInvalidInput, location, contractID)
	}
	return nil
}
