package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Channel identifies where a customer interaction originated.
type Channel string

const (
	ChannelPhone    Channel = "Phone"
	ChannelEmail    Channel = "Email"
	ChannelWhatsApp Channel = "WhatsApp"
	ChannelInPerson Channel = "InPerson"
)

// Interaction is an immutable record of one customer contact. It is created
// by ingestion and never mutated; downstream computations reference it by ID.
type Interaction struct {
	InteractionID string                 `json:"interaction_id"`
	CustomerID    string                 `json:"customer_id"`
	Channel       Channel                `json:"channel"`
	Content       string                 `json:"content"`
	Summary       string                 `json:"summary,omitempty"`
	Sentiment     Sentiment              `json:"sentiment,omitempty"`
	Intents       []string               `json:"intents,omitempty"`
	StaffID       string                 `json:"staff_id,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

func validChannel(value interface{}) error {
	ch, _ := value.(Channel)
	switch ch {
	case ChannelPhone, ChannelEmail, ChannelWhatsApp, ChannelInPerson:
		return nil
	}
	return validation.NewError("validation_channel", "channel must be one of Phone, Email, WhatsApp, InPerson")
}

// Validate checks that an inbound interaction event is well formed before it
// enters the scoring pipeline.
func (i *Interaction) Validate() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.CustomerID, validation.Required),
		validation.Field(&i.Channel, validation.Required, validation.By(validChannel)),
		validation.Field(&i.OccurredAt, validation.Required),
	)
}
