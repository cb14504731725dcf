package repository

import (
	"context"
	"sync"
	"time"

	"shop-api/internal/domain"
)

// MemoryAccountRepository guarda cuentas en memoria. Sirve para tests y para
// levantar el servicio sin base de datos; respeta el mismo contrato atomico.
type MemoryAccountRepository struct {
	mu      sync.Mutex
	byID    map[string]domain.Account
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[string]domain.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// WithClock fija la fuente de tiempo usada para UpdatedAt.
func (r *MemoryAccountRepository) WithClock(now func() time.Time) *MemoryAccountRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account domain.Account) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[account.Email]; ok {
		return &domain.Error{Kind: domain.KindConflict, Message: "account already exists"}
	}
	if _, ok := r.byID[account.ID]; ok {
		return &domain.Error{Kind: domain.KindConflict, Message: "account already exists"}
	}
	r.byID[account.ID] = account.Clone()
	r.byEmail[account.Email] = account.ID
	return nil
}

func (r *MemoryAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryAccountRepository) GetByEmailVerificationHash(ctx context.Context, tokenHash string) (domain.Account, error) {
	return r.findBy(ctx, func(a domain.Account) bool {
		return tokenHash != "" && a.EmailVerificationTokenHash == tokenHash
	})
}

func (r *MemoryAccountRepository) GetByResetHash(ctx context.Context, tokenHash string) (domain.Account, error) {
	return r.findBy(ctx, func(a domain.Account) bool {
		return tokenHash != "" && a.ResetPasswordTokenHash == tokenHash
	})
}

func (r *MemoryAccountRepository) Update(ctx context.Context, id string, fn func(*domain.Account) error) (domain.Account, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.Account{}, err
	}
	next.ID = current.ID
	if next.Email != current.Email {
		if owner, taken := r.byEmail[next.Email]; taken && owner != id {
			return domain.Account{}, &domain.Error{Kind: domain.KindConflict, Message: "account already exists"}
		}
		delete(r.byEmail, current.Email)
		r.byEmail[next.Email] = id
	}
	next.Version = current.Version + 1
	next.UpdatedAt = r.now().UTC()
	r.byID[id] = next
	return next.Clone(), nil
}

func (r *MemoryAccountRepository) Delete(ctx context.Context, id string) (domain.Account, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, a.Email)
	return a, nil
}

func (r *MemoryAccountRepository) findBy(ctx context.Context, match func(domain.Account) bool) (domain.Account, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &domain.Error{Kind: domain.KindTimeout, Message: "store operation interrupted", Err: err}
	}
	return nil
}
