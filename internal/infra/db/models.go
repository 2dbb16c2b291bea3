package db

import "time"

type ContractModel struct {
	ID               string `gorm:"primaryKey"`
	PartiesJSON      []byte `gorm:"column:parties_json;type:jsonb;not null"`
	FieldsJSON       []byte `gorm:"column:fields_json;type:jsonb;not null"`
	Status           string `gorm:"not null"`
	OriginalHash     *string
	OriginalLocation *string
	SignedLocation   *string
	Version          int64     `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (ContractModel) TableName() string { return "contracts" }

type SignatureRecordModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	Seq         int64     `gorm:"->;column:seq"`
	ContractID  string    `gorm:"index;not null"`
	Hash        string    `gorm:"not null"`
	HMAC        string    `gorm:"column:hmac;not null"`
	QRCode      string    `gorm:"column:qr_code;not null"`
	SignedAt    time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null"`
	SignerID    *string
	SignerEmail *string
	Location    *string
	IPAddress   *string `gorm:"column:ip_address"`
}

func (SignatureRecordModel) TableName() string { return "signature_records" }

type ContractArtifactModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	ContractID string    `gorm:"index;not null"`
	Kind       string    `gorm:"not null"`
	Location   string    `gorm:"not null"`
	Hash       string    `gorm:"not null"`
	Size       int64     `gorm:"not null"`
	Version    int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (ContractArtifactModel) TableName() string { return "contract_artifacts" }

type AuditEventModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	StreamID      string `gorm:"index;not null"`
	Seq           int64  `gorm:"not null"`
	EventType     string `gorm:"not null"`
	Action        *string
	PayloadJSON   []byte `gorm:"column:payload_json;type:bytea;not null"`
	PayloadHash   string `gorm:"not null"`
	ActorType     string `gorm:"not null"`
	ActorID       *string
	ActorIDHash   *string
	Result        string `gorm:"not null"`
	Outcome       *string
	ErrorCode     *string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }

type AccessTokenModel struct {
	TokenHash  string    `gorm:"primaryKey"`
	ContractID string    `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	ExpiresAt  *time.Time
}

func (AccessTokenModel) TableName() string { return "access_tokens" }
