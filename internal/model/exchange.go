package model

import "time"

// Status is the lifecycle state of an exchange. Records are created already
// sent, so the first persisted status is StatusAwaitingAcceptance. The status
// tokens are stored as-is and must not change.
type Status string

const (
	// StatusAwaitingAcceptance means the recipient has not answered yet.
	StatusAwaitingAcceptance Status = "en_attente_acceptation"
	// StatusAwaitingValidation means a counter-offer is waiting for the initiator.
	StatusAwaitingValidation Status = "en_attente_validation"
	// StatusCompleted is terminal: both sides received their shipment.
	StatusCompleted Status = "termine"
	// StatusRefused is terminal: one party rejected, stock was restored.
	StatusRefused Status = "refuse"
	// StatusCancelled is terminal: the initiator withdrew before acceptance.
	StatusCancelled Status = "annule"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRefused, StatusCancelled:
		return true
	}
	return false
}

// ExchangeAction is the closed set of transition commands. Request strings
// are parsed into this type exactly once at the transport boundary.
type ExchangeAction string

const (
	ActionAccept   ExchangeAction = "accept"
	ActionValidate ExchangeAction = "validate"
	ActionRefuse   ExchangeAction = "refuse"
	ActionCancel   ExchangeAction = "annuler"
)

// transitions lists, per action, the statuses it may be applied to.
var transitions = map[ExchangeAction][]Status{
	ActionAccept:   {StatusAwaitingAcceptance},
	ActionValidate: {StatusAwaitingValidation},
	ActionRefuse:   {StatusAwaitingAcceptance, StatusAwaitingValidation},
	ActionCancel:   {StatusAwaitingAcceptance},
}

// CanApply reports whether action is legal from the given status.
func CanApply(action ExchangeAction, from Status) bool {
	for _, s := range transitions[action] {
		if s == from {
			return true
		}
	}
	return false
}

// ParseExchangeAction maps a request token to an action.
func ParseExchangeAction(s string) (ExchangeAction, bool) {
	switch ExchangeAction(s) {
	case ActionAccept, ActionValidate, ActionRefuse, ActionCancel:
		return ExchangeAction(s), true
	}
	return "", false
}

// Exchange is one negotiation between two tenants.
type Exchange struct {
	BaseModel
	TenantID                   string  `db:"tenant_id" json:"tenant_id"`
	Reference                  string  `db:"reference" json:"reference"`
	DestinationEstablishmentID string  `db:"destination_establishment_id" json:"destination_establishment_id"`
	DestinationTenantID        string  `db:"destination_tenant_id" json:"destination_tenant_id"`
	Status                     Status  `db:"status" json:"status"`
	ArticleCount               int     `db:"article_count" json:"article_count"`
	TotalQuantity              int     `db:"total_quantity" json:"total_quantity"`
	EstimatedValue             float64 `db:"estimated_value" json:"estimated_value"`
	CounterEstimatedValue      float64 `db:"counter_estimated_value" json:"counter_estimated_value"`
	// Difference holds initiator value minus counter value, clamped to zero
	// when negative. The one-sided display semantic is deliberate.
	Difference    float64    `db:"difference" json:"difference"`
	Motive        *string    `db:"motive" json:"motive"`
	Note          *string    `db:"note" json:"note"`
	RefusalReason *string    `db:"refusal_reason" json:"refusal_reason"`
	SentAt        time.Time  `db:"sent_at" json:"sent_at"`
	CounteredAt   *time.Time `db:"countered_at" json:"countered_at"`
	ValidatedAt   *time.Time `db:"validated_at" json:"validated_at"`
	RefusedAt     *time.Time `db:"refused_at" json:"refused_at"`
	ClosedAt      *time.Time `db:"closed_at" json:"closed_at"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	ValidatedBy   *string    `db:"validated_by" json:"validated_by"`
	ModifiedBy    *string    `db:"modified_by" json:"modified_by"`
	IsActive      bool       `db:"is_active" json:"is_active"`

	Lines        []ExchangeLine     `db:"-" json:"lines,omitempty"`
	CounterLines []CounterOfferLine `db:"-" json:"counter_lines,omitempty"`
}

// ExchangeLine is what the initiator offers. SourceLotID is nil for manually
// entered items that have no backing lot; those never touch stock until the
// exchange is validated.
type ExchangeLine struct {
	ID          string     `db:"id" json:"id"`
	ExchangeID  string     `db:"exchange_id" json:"exchange_id"`
	ProductName string     `db:"product_name" json:"product_name"`
	ProductCode *string    `db:"product_code" json:"product_code"`
	LotNumber   *string    `db:"lot_number" json:"lot_number"`
	SourceLotID *string    `db:"source_lot_id" json:"source_lot_id"`
	Quantity    int        `db:"quantity" json:"quantity"`
	UnitPrice   float64    `db:"unit_price" json:"unit_price"`
	LineTotal   float64    `db:"line_total" json:"line_total"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// CounterOfferLine is what the recipient proposes back. Same shape as an
// exchange line but kept as its own table: both collections become
// append-only once the record reaches a terminal state.
type CounterOfferLine struct {
	ID          string     `db:"id" json:"id"`
	ExchangeID  string     `db:"exchange_id" json:"exchange_id"`
	ProductName string     `db:"product_name" json:"product_name"`
	ProductCode *string    `db:"product_code" json:"product_code"`
	LotNumber   *string    `db:"lot_number" json:"lot_number"`
	SourceLotID *string    `db:"source_lot_id" json:"source_lot_id"`
	Quantity    int        `db:"quantity" json:"quantity"`
	UnitPrice   float64    `db:"unit_price" json:"unit_price"`
	LineTotal   float64    `db:"line_total" json:"line_total"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
