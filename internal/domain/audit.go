package domain

import "time"

// AuditOperation es el tipo de mutacion registrada en la bitacora.
type AuditOperation string

const (
	AuditCreate AuditOperation = "create"
	AuditUpdate AuditOperation = "update"
	AuditDelete AuditOperation = "delete"
	AuditLogin  AuditOperation = "login"
)

// SystemActor identifica acciones sin usuario autenticado.
const SystemActor = "System"

// AuditEntry es un registro inmutable de una transicion de seguridad.
type AuditEntry struct {
	ID             string         `json:"id" bson:"_id"`
	ActorID        string         `json:"actor_id" bson:"userId"`
	Operation      AuditOperation `json:"operation" bson:"operation"`
	CollectionName string         `json:"collection_name" bson:"collectionName"`
	DocumentID     *string        `json:"document_id,omitempty" bson:"documentId,omitempty"`
	OldValue       map[string]any `json:"old_value,omitempty" bson:"oldValue,omitempty"`
	NewValue       map[string]any `json:"new_value,omitempty" bson:"newValue,omitempty"`
	Timestamp      time.Time      `json:"timestamp" bson:"timestamp"`
}
