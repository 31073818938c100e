package models

import (
	"encoding/json"
	"time"
)

// Audited actions. The generic CREATE/UPDATE/DELETE actions are recorded by
// the audit middleware with the resource name.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionTokenRefresh   = "TOKEN_REFRESH"
	AuditActionLogout         = "LOGOUT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionPasswordReset  = "PASSWORD_RESET"
	AuditActionCreate         = "CREATE"
	AuditActionUpdate         = "UPDATE"
	AuditActionDelete         = "DELETE"
)

type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewAuditLog builds an entry where actor acted on a resource owned by
// subject. Values are JSON encoded; nil maps are left empty.
func NewAuditLog(actor, action, resource, subject string, client ClientInfo, oldValues, newValues map[string]interface{}) *AuditLog {
	entry := &AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	}
	if actor != "" {
		entry.UserID = &actor
	}
	if subject != "" {
		entry.ResourceID = &subject
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	return entry
}
