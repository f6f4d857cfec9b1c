package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

// RecordInteraction persists a customer interaction.
func (d Datasource) RecordInteraction(ctx context.Context, interaction *model.Interaction) (*model.Interaction, error) {
	if interaction.InteractionID == "" {
		interaction.InteractionID = GenerateUUIDWithSuffix("intr")
	}
	if interaction.OccurredAt.IsZero() {
		interaction.OccurredAt = time.Now()
	}

	metaDataJSON, err := json.Marshal(interaction.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal interaction metadata", err)
	}
	intentsJSON, err := json.Marshal(interaction.Intents)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal intents", err)
	}

	// Ingestion is at-least-once: a redelivered interaction re-runs this
	// insert with the same ID, and the conflict clause lets the rest of the
	// pipeline resume instead of poisoning the delivery.
	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO leadflow.interactions (interaction_id, customer_id, channel, content, summary, sentiment, intents, staff_id, occurred_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (interaction_id) DO NOTHING
	`, interaction.InteractionID, interaction.CustomerID, interaction.Channel, interaction.Content,
		interaction.Summary, interaction.Sentiment, intentsJSON, interaction.StaffID,
		interaction.OccurredAt, metaDataJSON)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record interaction", err)
	}
	return interaction, nil
}

func scanInteraction(row interface{ Scan(...interface{}) error }) (*model.Interaction, error) {
	interaction := &model.Interaction{}
	var intentsJSON, metaDataJSON []byte
	var summary, sentiment, staffID sql.NullString
	err := row.Scan(&interaction.InteractionID, &interaction.CustomerID, &interaction.Channel,
		&interaction.Content, &summary, &sentiment, &intentsJSON, &staffID,
		&interaction.OccurredAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	interaction.Summary = summary.String
	interaction.Sentiment = model.Sentiment(sentiment.String)
	interaction.StaffID = staffID.String
	if len(intentsJSON) > 0 {
		if err := json.Unmarshal(intentsJSON, &interaction.Intents); err != nil {
			return nil, err
		}
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &interaction.MetaData); err != nil {
			return nil, err
		}
	}
	return interaction, nil
}

// GetInteraction retrieves an interaction by its ID.
func (d Datasource) GetInteraction(ctx context.Context, id string) (*model.Interaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT interaction_id, customer_id, channel, content, summary, sentiment, intents, staff_id, occurred_at, meta_data
		FROM leadflow.interactions
		WHERE interaction_id = $1
	`, id)

	interaction, err := scanInteraction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Interaction '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get interaction", err)
	}
	return interaction, nil
}

// GetInteractionsForCustomer lists a customer's interactions, most recent
// first. A zero limit defaults to 50.
func (d Datasource) GetInteractionsForCustomer(ctx context.Context, customerID string, limit int) ([]model.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT interaction_id, customer_id, channel, content, summary, sentiment, intents, staff_id, occurred_at, meta_data
		FROM leadflow.interactions
		WHERE customer_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get interactions", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var interactions []model.Interaction
	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan interaction", err)
		}
		interactions = append(interactions, *interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate interactions", err)
	}
	return interactions, nil
}
