package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

// RecordCampaign inserts a campaign instance.
func (d Datasource) RecordCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	if c.CampaignID == "" {
		c.CampaignID = GenerateUUIDWithSuffix("cmp")
	}
	if c.Status == "" {
		c.Status = model.CampaignActive
	}
	if c.ActivatedAt.IsZero() {
		c.ActivatedAt = time.Now()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO leadflow.campaigns (campaign_id, template_id, customer_id, trigger_event, status, activated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.CampaignID, c.TemplateID, c.CustomerID, c.TriggerEvent, c.Status, c.ActivatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record campaign", err)
	}
	return c, nil
}

func scanCampaign(row interface{ Scan(...interface{}) error }) (*model.Campaign, error) {
	c := &model.Campaign{}
	var cancelledAt sql.NullTime
	err := row.Scan(&c.CampaignID, &c.TemplateID, &c.CustomerID, &c.TriggerEvent, &c.Status, &c.ActivatedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		c.CancelledAt = &cancelledAt.Time
	}
	return c, nil
}

// GetCampaign retrieves a campaign by its ID.
func (d Datasource) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT campaign_id, template_id, customer_id, trigger_event, status, activated_at, cancelled_at
		FROM leadflow.campaigns
		WHERE campaign_id = $1
	`, id)

	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Campaign '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get campaign", err)
	}
	return c, nil
}

// GetActiveCampaign looks up an active campaign for a customer and template.
// Re-activation checks hinge on this: one active instance per (customer,
// template) pair.
func (d Datasource) GetActiveCampaign(ctx context.Context, customerID, templateID string) (*model.Campaign, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT campaign_id, template_id, customer_id, trigger_event, status, activated_at, cancelled_at
		FROM leadflow.campaigns
		WHERE customer_id = $1 AND template_id = $2 AND status = $3
		ORDER BY activated_at DESC
		LIMIT 1
	`, customerID, templateID, model.CampaignActive)

	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("No active '%s' campaign for customer '%s'", templateID, customerID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get active campaign", err)
	}
	return c, nil
}

// GetCampaignsForCustomer lists every campaign instance for a customer,
// most recent first.
func (d Datasource) GetCampaignsForCustomer(ctx context.Context, customerID string) ([]model.Campaign, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT campaign_id, template_id, customer_id, trigger_event, status, activated_at, cancelled_at
		FROM leadflow.campaigns
		WHERE customer_id = $1
		ORDER BY activated_at DESC
	`, customerID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get customer campaigns", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan campaign", err)
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate campaigns", err)
	}
	return campaigns, nil
}

// CancelCampaign flips an active campaign to CANCELLED. Cancelling an
// already-cancelled campaign is a no-op conflict.
func (d Datasource) CancelCampaign(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadflow.campaigns
		SET status = $2, cancelled_at = $3
		WHERE campaign_id = $1 AND status = $4
	`, id, model.CampaignCancelled, time.Now(), model.CampaignActive)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to cancel campaign", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Campaign '%s' is not active", id), nil)
	}
	return nil
}
