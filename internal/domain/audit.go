package domain

import "time"

type AuditActorType string

const (
	AuditChainVersion = "audit_chain_v0"

	AuditActorSystem AuditActorType = "system"
	AuditActorUser   AuditActorType = "user"
)

type AuditEventType string

const (
	AuditEventDocumentGenerated   AuditEventType = "document_generated"
	AuditEventContractSigned      AuditEventType = "contract_signed"
	AuditEventContractVerified    AuditEventType = "contract_verified"
	AuditEventContractEdited      AuditEventType = "contract_edited"
	AuditEventSignatureVerified   AuditEventType = "signature_verified"
	AuditEventTamperSuspected     AuditEventType = "tamper_suspected"
	AuditEventSignatureExpired    AuditEventType = "signature_expired"
	AuditEventAccessTokenIssued   AuditEventType = "access_token_issued"
	AuditEventAccessTokenRedeemed AuditEventType = "access_token_redeemed"
)

// AuditAction is the coarse workflow verb shown to administrators.
type AuditAction string

const (
	AuditActionGenerate AuditAction = "GENERATE"
	AuditActionSign     AuditAction = "SIGN"
	AuditActionVerify   AuditAction = "VERIFY"
	AuditActionEdit     AuditAction = "EDIT"
	AuditActionShare    AuditAction = "SHARE"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditEvent is one link of a per-contract hash chain. Events are appended,
// never updated or deleted.
type AuditEvent struct {
	ID            string
	StreamID      string
	Seq           int64
	EventType     AuditEventType
	Action        AuditAction
	Payload       any
	PayloadHash   string
	ActorType     AuditActorType
	ActorID       string
	ActorIDHash   string
	Result        AuditResult
	Outcome       VerificationOutcome
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
