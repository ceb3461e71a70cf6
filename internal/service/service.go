package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/repository"
)

// Notifier is told about committed sales. Implementations must not block and
// must swallow their own failures.
type Notifier interface {
	SaleRecorded(sale domain.Sale, customer *domain.Customer)
}

type noopNotifier struct{}

func (noopNotifier) SaleRecorded(domain.Sale, *domain.Customer) {}

type Service struct {
	store    repository.Store
	notifier Notifier
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: noopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	return s.store.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, patch repository.SettingsPatch) (domain.StoreSettings, error) {
	if patch.TaxRate != nil {
		if patch.TaxRate.IsNegative() || patch.TaxRate.GreaterThan(hundred) {
			return domain.StoreSettings{}, invalid("tax_rate", "must be between 0 and 100")
		}
		rate := patch.TaxRate.Round(rateScale)
		patch.TaxRate = &rate
	}
	return s.store.UpdateSettings(ctx, patch)
}

func (s *Service) CreateCustomer(ctx context.Context, input repository.CustomerInput) (domain.Customer, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return domain.Customer{}, invalid("name", "is required")
	}
	input.Email = normalizeNullable(input.Email)
	input.Phone = normalizeNullable(input.Phone)
	return s.store.CreateCustomer(ctx, input)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

func (s *Service) ListAudit(ctx context.Context, limit, offset int, search string) ([]domain.AuditEntry, error) {
	return s.store.ListAudit(ctx, limit, offset, search)
}

func (s *Service) CountAudit(ctx context.Context, search string) (int, error) {
	return s.store.CountAudit(ctx, search)
}

func audit(ctx context.Context, tx repository.Tx, action, entityType string, entityID *int64, details string) error {
	if err := tx.InsertAudit(ctx, domain.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func normalizeNullable(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
