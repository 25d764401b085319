package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEnable           = "enable"
	fieldBlocked          = "blocked"
	fieldPasswordHash     = "password_hash"
	fieldUpdatedAt        = "updated_at"
	fieldRefreshToken     = "refresh_token"
	fieldRefreshExpiresAt = "refresh_expires_at"
	fieldKey              = "key"
	fieldValue            = "value"
	fieldExpiresAt        = "expires_at"
	fieldExpiresAtMillis  = "expires_at_ms"
)
