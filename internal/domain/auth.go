package domain

import "time"

// SubjectType identifies who a control-API token was issued to.
type SubjectType string

const (
	SubjectTypeOperator SubjectType = "OPERATOR"
)

// Token is metadata about an issued operator token.
type Token struct {
	SubjectID string
	Subject   SubjectType
	ExpiresAt time.Time
	IssuedAt  time.Time
}
