package model

import "time"

// CampaignStep is one templated task inside a campaign, offset from
// activation time by Delay.
type CampaignStep struct {
	Kind     TaskKind               `json:"kind"`
	Delay    time.Duration          `json:"delay"`
	Template string                 `json:"template,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// CampaignTrigger names the condition that activates a template
// automatically: a lead entering a classification, or an interaction
// arriving on a channel.
type CampaignTrigger string

const (
	TriggerHotLead   CampaignTrigger = "classification:Hot"
	TriggerWarmLead  CampaignTrigger = "classification:Warm"
	TriggerPhoneCall CampaignTrigger = "channel:Phone"
)

// TriggerForClassification maps a classification to its activation trigger.
func TriggerForClassification(c Classification) CampaignTrigger {
	return CampaignTrigger("classification:" + string(c))
}

// TriggerForChannel maps an interaction channel to its activation trigger.
func TriggerForChannel(ch Channel) CampaignTrigger {
	return CampaignTrigger("channel:" + string(ch))
}

// CampaignTemplate is a reusable, ordered sequence of task templates with
// relative delays, bound at activation time to a customer. Trigger is the
// condition whose occurrence activates the template automatically.
type CampaignTemplate struct {
	TemplateID string          `json:"template_id"`
	Name       string          `json:"name"`
	Trigger    CampaignTrigger `json:"trigger"`
	Steps      []CampaignStep  `json:"steps"`
}

// Campaign statuses. A campaign has no explicit "completed" status: it
// completes implicitly when all of its tasks reach a terminal status.
const (
	CampaignActive    = "ACTIVE"
	CampaignCancelled = "CANCELLED"
)

// Builtin template IDs.
const (
	TemplateHotLead          = "hot-lead"
	TemplateWarmNurture      = "warm-nurture"
	TemplatePostCallThankYou = "post-call-thankyou"
)

// Campaign binds a template to a customer. It owns the tasks it
// materializes; cancelling the campaign cancels its still-pending tasks.
type Campaign struct {
	CampaignID   string     `json:"campaign_id"`
	TemplateID   string     `json:"template_id"`
	CustomerID   string     `json:"customer_id"`
	TriggerEvent string     `json:"trigger_event"`
	Status       string     `json:"status"`
	ActivatedAt  time.Time  `json:"activated_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// HotLeadTemplate is the follow-up chain activated when a lead enters Hot:
// an immediate staff task plus a same-hour follow-up email.
func HotLeadTemplate() CampaignTemplate {
	return CampaignTemplate{
		TemplateID: TemplateHotLead,
		Name:       "Hot lead response",
		Trigger:    TriggerHotLead,
		Steps: []CampaignStep{
			{Kind: KindCreateStaffTask, Delay: 0, Template: "hot_lead_callback", Payload: map[string]interface{}{"due_in_hours": 4}},
			{Kind: KindSendEmail, Delay: 30 * time.Minute, Template: "test_drive_followup"},
		},
	}
}

// WarmNurtureTemplate is the day 0/3/7 nurture cadence for warm leads.
func WarmNurtureTemplate() CampaignTemplate {
	return CampaignTemplate{
		TemplateID: TemplateWarmNurture,
		Name:       "Warm lead nurture",
		Trigger:    TriggerWarmLead,
		Steps: []CampaignStep{
			{Kind: KindNurtureStep, Delay: 0, Template: "nurture_campaign"},
			{Kind: KindNurtureStep, Delay: 3 * 24 * time.Hour, Template: "nurture_campaign"},
			{Kind: KindNurtureStep, Delay: 7 * 24 * time.Hour, Template: "nurture_campaign"},
		},
	}
}

// PostCallThankYouTemplate sends a thank-you note shortly after a phone
// interaction.
func PostCallThankYouTemplate() CampaignTemplate {
	return CampaignTemplate{
		TemplateID: TemplatePostCallThankYou,
		Name:       "Post call thank you",
		Trigger:    TriggerPhoneCall,
		Steps: []CampaignStep{
			{Kind: KindSendEmail, Delay: 30 * time.Minute, Template: "post_call_thankyou"},
		},
	}
}

func builtinTemplateList() []CampaignTemplate {
	return []CampaignTemplate{HotLeadTemplate(), WarmNurtureTemplate(), PostCallThankYouTemplate()}
}

// BuiltinTemplates lists the templates shipped with the engine, keyed by
// template ID.
func BuiltinTemplates() map[string]CampaignTemplate {
	templates := map[string]CampaignTemplate{}
	for _, t := range builtinTemplateList() {
		templates[t.TemplateID] = t
	}
	return templates
}

// TemplatesForTrigger returns the builtin templates bound to the trigger, in
// declaration order.
func TemplatesForTrigger(trigger CampaignTrigger) []CampaignTemplate {
	var matched []CampaignTemplate
	for _, t := range builtinTemplateList() {
		if t.Trigger == trigger {
			matched = append(matched, t)
		}
	}
	return matched
}
