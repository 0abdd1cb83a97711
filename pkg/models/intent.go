package models

// IntentKind classifies one actionable intent parsed out of a client message.
// A single message can carry several intents ("Room B works, add coffee for
// 30"); the planner applies them in dependency order, never message order.
type IntentKind string

const (
	IntentDateConfirm  IntentKind = "date_confirm"
	IntentRoomSelect   IntentKind = "room_select"
	IntentRequirements IntentKind = "requirements_update"
	IntentProductAdd   IntentKind = "product_add"
	IntentBilling      IntentKind = "billing_capture"
)

// Intent is one typed, parsed client intent.
type Intent struct {
	Kind IntentKind `json:"kind"`

	Date         string            `json:"date,omitempty"`    // date_confirm
	RoomID       string            `json:"room_id,omitempty"` // room_select
	Participants int               `json:"participants,omitempty"`
	Requirements map[string]string `json:"requirements,omitempty"` // requirements_update

	ProductSKU string `json:"product_sku,omitempty"` // product_add
	Quantity   int    `json:"quantity,omitempty"`

	BillingField string `json:"billing_field,omitempty"` // billing_capture
	BillingValue string `json:"billing_value,omitempty"`
}

// dependencyRank orders intent kinds along the fact DAG:
// date -> room -> participants/requirements -> products -> billing.
var dependencyRank = map[IntentKind]int{
	IntentDateConfirm:  0,
	IntentRoomSelect:   1,
	IntentRequirements: 2,
	IntentProductAdd:   3,
	IntentBilling:      4,
}

// DependencyRank returns the intent's position in the fact dependency order.
// Unknown kinds sort last.
func (k IntentKind) DependencyRank() int {
	if r, ok := dependencyRank[k]; ok {
		return r
	}
	return len(dependencyRank)
}
