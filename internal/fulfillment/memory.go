package fulfillment

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps all state in process memory behind one mutex. This is
// the reference system's behavior: state lives for the process lifetime and
// is lost on restart. Use NewPostgresStore when durability is required.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	upsells map[string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		upsells: make(map[string]struct{}),
	}
}

// Fulfill inserts the record under the lock so concurrent callers observe
// either no record or a fully-written one, never a partial write.
func (s *MemoryStore) Fulfill(_ context.Context, p FulfillParams) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[p.PaymentID]; ok {
		return existing, nil
	}

	token, err := newDownloadToken()
	if err != nil {
		return Record{}, err
	}

	profile := p.Profile
	rec := Record{
		PaymentID:     p.PaymentID,
		Status:        StatusApproved,
		Email:         p.Email,
		Profile:       profile,
		DownloadToken: token,
		CreatedAt:     time.Now().UTC(),
	}
	s.records[p.PaymentID] = rec
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, paymentID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[paymentID]
	return rec, ok, nil
}

func (s *MemoryStore) MarkUpsellUnlocked(_ context.Context, parentPaymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsells[parentPaymentID] = struct{}{}
	return nil
}

func (s *MemoryStore) IsUpsellUnlocked(_ context.Context, parentPaymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.upsells[parentPaymentID]
	return ok, nil
}
