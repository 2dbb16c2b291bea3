package domain

// SigningPolicyInput is evaluated before an artifact is signed.
type SigningPolicyInput struct {
	ContractID string          `json:"contract_id"`
	Status     SignatureStatus `json:"status"`
	Parties    []string        `json:"parties"`
	Signer     PolicySigner    `json:"signer"`
	HasOrigin  bool            `json:"has_original_artifact"`
}

type PolicySigner struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	PolicyHash string       `json:"policy_hash"`
	Result     PolicyResult `json:"result"`
}

// Policy deny codes understood by the signing workflow.
const (
	DenySignerNotParty = "SIGNER_NOT_PARTY"
	DenyStatusInvalid  = "STATUS_INVALID"
	DenyNoArtifact     = "ORIGINAL_ARTIFACT_MISSING"
)
