// Package schema defines the database schema for development.
//
// DEVELOPMENT USE ONLY
// This file contains the current database schema and is used for development and testing.
// Before deploying to production, these table definitions should be converted to proper migrations.
package schema

// TableDefinitions contains all the SQL statements to create the database tables
// Don't put REFERENCES and don't put CHECK constraints in the CREATE TABLE statements
var TableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		key_hash VARCHAR(64) UNIQUE NOT NULL,
		rate_limit_per_second INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		last_used_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		api_key_id UUID NOT NULL,
		type VARCHAR(20) NOT NULL,
		idempotency_key VARCHAR(255),
		from_address VARCHAR(255) NOT NULL,
		from_name VARCHAR(255),
		reply_to VARCHAR(255),
		to_address VARCHAR(255) NOT NULL,
		subject TEXT,
		text_body TEXT,
		html_body TEXT,
		headers JSONB,
		status VARCHAR(20) NOT NULL DEFAULT 'queued',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		claimed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		sent_at TIMESTAMP,
		delivered_at TIMESTAMP,
		failed_at TIMESTAMP
	)`,
	// Idempotency keys dedupe per API key, not globally.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_idempotency
		ON messages(api_key_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL`,
	// Partial index keeps the claim query fast regardless of history size.
	`CREATE INDEX IF NOT EXISTS idx_messages_claimable
		ON messages(status, created_at)
		WHERE status IN ('queued', 'processing')`,
	`CREATE TABLE IF NOT EXISTS sending_domains (
		id UUID PRIMARY KEY,
		api_key_id UUID NOT NULL,
		domain VARCHAR(255) NOT NULL,
		dkim_selector VARCHAR(63) NOT NULL,
		dkim_private_key TEXT NOT NULL,
		dkim_public_key TEXT NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (api_key_id, domain)
	)`,
	`CREATE TABLE IF NOT EXISTS suppressions (
		id UUID PRIMARY KEY,
		api_key_id UUID NOT NULL,
		email VARCHAR(255) NOT NULL,
		reason VARCHAR(20) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (api_key_id, email)
	)`,
	`CREATE TABLE IF NOT EXISTS webhooks (
		id UUID PRIMARY KEY,
		api_key_id UUID NOT NULL,
		url TEXT NOT NULL,
		secret VARCHAR(255) NOT NULL,
		events TEXT[] NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id UUID PRIMARY KEY,
		webhook_id UUID NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_attempt_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		delivered_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_pending
		ON webhook_deliveries(created_at)
		WHERE status = 'pending'`,
}

// NotifyDefinitions wires LISTEN/NOTIFY wake-ups: inserts fire a pg_notify so
// workers pick up new rows without waiting for the next poll tick.
var NotifyDefinitions = []string{
	`CREATE OR REPLACE FUNCTION notify_message_queued() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('message_queued', json_build_object(
			'id', NEW.id,
			'type', NEW.type,
			'api_key_id', NEW.api_key_id
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS messages_notify ON messages`,
	`CREATE TRIGGER messages_notify
		AFTER INSERT ON messages
		FOR EACH ROW
		WHEN (NEW.status = 'queued')
		EXECUTE FUNCTION notify_message_queued()`,
	`CREATE OR REPLACE FUNCTION notify_webhook_pending() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('webhook_pending', json_build_object(
			'id', NEW.id,
			'webhook_id', NEW.webhook_id
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS webhook_deliveries_notify ON webhook_deliveries`,
	`CREATE TRIGGER webhook_deliveries_notify
		AFTER INSERT ON webhook_deliveries
		FOR EACH ROW
		WHEN (NEW.status = 'pending')
		EXECUTE FUNCTION notify_webhook_pending()`,
}
