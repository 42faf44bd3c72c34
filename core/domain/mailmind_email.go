package domain

import "time"

// DefaultCustomerName is used when an email has no sender display name.
const DefaultCustomerName = "Customer"

// Email is an inbound customer message.
type Email struct {
	ID                string    `json:"id"`
	ExternalID        string    `json:"external_id,omitempty"`
	FromAddress       string    `json:"from_address"`
	FromName          string    `json:"from_name,omitempty"`
	ToAddress         string    `json:"to_address,omitempty"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	ReceivedAt        time.Time `json:"received_at"`
	IsCustomerService bool      `json:"is_customer_service"`
	Category          *string   `json:"category,omitempty"`
	Processed         bool      `json:"processed"`
	CreatedAt         time.Time `json:"created_at"`
}

// Content is the text used for skill matching.
func (e *Email) Content() string {
	return e.Subject + "\n\n" + e.Body
}

// CustomerName returns the sender display name or the default.
func (e *Email) CustomerName() string {
	if e.FromName != "" {
		return e.FromName
	}
	return DefaultCustomerName
}

// HasCategory reports whether classification assigned a category.
func (e *Email) HasCategory() bool {
	return e.Category != nil && *e.Category != ""
}

// CategoryValue returns the category or an empty string.
func (e *Email) CategoryValue() string {
	if e.Category == nil {
		return ""
	}
	return *e.Category
}

// ApplyClassification copies a classifier verdict onto the email.
func (e *Email) ApplyClassification(c *Classification) {
	e.IsCustomerService = c.IsCustomerService
	e.Category = c.Category
}

// EmailFilter selects emails for listing.
type EmailFilter struct {
	CustomerServiceOnly bool
	Category            string
	Unprocessed         bool
	Limit               int
	Offset              int
}

// Classification categories.
const (
	CategoryEquipmentFault      = "equipment-fault"
	CategoryRefundCancellation  = "refund-cancellation"
	CategoryPriceInquiry        = "price-inquiry"
	CategoryTechnicalSupport    = "technical-support"
	CategoryLogisticsIssue      = "logistics-issue"
	CategoryComplaintSuggestion = "complaint-suggestion"
	CategoryOther               = "other"
	CategoryNonCustomerService  = "non-customer-service"
)

// Categories lists every label the classifier may return.
var Categories = []string{
	CategoryEquipmentFault,
	CategoryRefundCancellation,
	CategoryPriceInquiry,
	CategoryTechnicalSupport,
	CategoryLogisticsIssue,
	CategoryComplaintSuggestion,
	CategoryOther,
	CategoryNonCustomerService,
}

// Classification is the classifier verdict for one email.
type Classification struct {
	IsCustomerService bool    `json:"is_customer_service"`
	Category          *string `json:"category"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
}

// Reply is a drafted answer to an email. AIDraft never changes after creation.
type Reply struct {
	ID          string     `json:"id"`
	EmailID     string     `json:"email_id"`
	AIDraft     string     `json:"ai_draft"`
	HumanEdited *string    `json:"human_edited,omitempty"`
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// HasHumanEdit reports whether a reviewer changed the draft.
func (r *Reply) HasHumanEdit() bool {
	return r.HumanEdited != nil && *r.HumanEdited != ""
}

// Outgoing picks the text to send: explicit content, then the human edit, then the draft.
func (r *Reply) Outgoing(content string) string {
	if content != "" {
		return content
	}
	if r.HasHumanEdit() {
		return *r.HumanEdited
	}
	return r.AIDraft
}
