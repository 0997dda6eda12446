package dto

type FindOrCreateInput struct {
	TenantID  string
	Name      string
	Code      *string
	BasePrice float64
}
