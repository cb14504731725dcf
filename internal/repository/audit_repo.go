package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"shop-api/internal/domain"
)

// AuditRepository persiste entradas de auditoria. Solo inserta.
type AuditRepository interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
}

// PgAuditRepository implementa AuditRepository usando pgxpool.
type PgAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPgAuditRepository(pool *pgxpool.Pool) *PgAuditRepository {
	return &PgAuditRepository{pool: pool}
}

func (r *PgAuditRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	const query = `
		INSERT INTO audit_logs (id, actor_id, operation, collection_name, document_id, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	oldValue, err := jsonOrNil(entry.OldValue)
	if err != nil {
		return err
	}
	newValue, err := jsonOrNil(entry.NewValue)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.ActorID,
		string(entry.Operation),
		entry.CollectionName,
		entry.DocumentID,
		oldValue,
		newValue,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func jsonOrNil(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// MongoAuditRepository escribe la bitacora en una coleccion de MongoDB.
type MongoAuditRepository struct {
	collection *mongo.Collection
}

func NewMongoAuditRepository(db *mongo.Database) *MongoAuditRepository {
	return &MongoAuditRepository{collection: db.Collection("auditlogs")}
}

func (r *MongoAuditRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

// MemoryAuditRepository acumula entradas en memoria.
type MemoryAuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Insert(_ context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries devuelve una copia de lo insertado hasta ahora.
func (r *MemoryAuditRepository) Entries() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEntry(nil), r.entries...)
}
