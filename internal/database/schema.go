package database

// Money columns hold ten-thousandths of a currency unit.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS interactions (
    account_id VARCHAR(64) NOT NULL,
    restaurant_id VARCHAR(64) NOT NULL,
    phone_hash CHAR(64) NOT NULL,
    first_interaction_at DATETIME(6) NOT NULL,
    last_active_at DATETIME(6) NOT NULL,
    status VARCHAR(16) NOT NULL,
    review_requested TINYINT(1) NOT NULL DEFAULT 0,
    review_requested_at DATETIME(6) NULL,
    review_completed TINYINT(1) NOT NULL DEFAULT 0,
    review_completed_at DATETIME(6) NULL,
    review_platform VARCHAR(64) NULL,
    review_rating INT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (restaurant_id, phone_hash),
    KEY idx_interactions_account (account_id)
)`,
	`CREATE TABLE IF NOT EXISTS interaction_events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    event_id CHAR(36) NOT NULL UNIQUE,
    account_id VARCHAR(64) NOT NULL,
    restaurant_id VARCHAR(64) NOT NULL,
    phone_hash CHAR(64) NOT NULL,
    kind VARCHAR(32) NOT NULL,
    detail JSON NULL,
    occurred_at DATETIME(6) NOT NULL,
    KEY idx_events_interaction (restaurant_id, phone_hash),
    KEY idx_events_account_kind (account_id, kind, occurred_at),
    KEY idx_events_restaurant_kind (restaurant_id, kind, occurred_at)
)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
    account_id VARCHAR(64) NOT NULL,
    restaurant_id VARCHAR(64) NOT NULL DEFAULT '',
    period VARCHAR(16) NOT NULL,
    period_start DATETIME NOT NULL,
    menu_conversations BIGINT NOT NULL DEFAULT 0,
    menu_messages BIGINT NOT NULL DEFAULT 0,
    menu_cost BIGINT NOT NULL DEFAULT 0,
    review_conversations BIGINT NOT NULL DEFAULT 0,
    review_messages BIGINT NOT NULL DEFAULT 0,
    review_cost BIGINT NOT NULL DEFAULT 0,
    campaign_conversations BIGINT NOT NULL DEFAULT 0,
    campaign_messages BIGINT NOT NULL DEFAULT 0,
    campaign_cost BIGINT NOT NULL DEFAULT 0,
    inbound_conversations BIGINT NOT NULL DEFAULT 0,
    inbound_messages BIGINT NOT NULL DEFAULT 0,
    inbound_cost BIGINT NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    version BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (account_id, restaurant_id, period, period_start)
)`,
	`CREATE TABLE IF NOT EXISTS gamification_states (
    restaurant_id VARCHAR(64) PRIMARY KEY,
    level INT NOT NULL DEFAULT 1,
    total_experience INT NOT NULL DEFAULT 0,
    current_streak INT NOT NULL DEFAULT 0,
    longest_streak INT NOT NULL DEFAULT 0,
    weekly_goals JSON NOT NULL,
    last_completed_at DATETIME(6) NULL,
    updated_at DATETIME(6) NOT NULL,
    version BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS restaurant_reviews (
    restaurant_id VARCHAR(64) PRIMARY KEY,
    initial_count INT NOT NULL DEFAULT 0,
    current_count INT NOT NULL DEFAULT 0,
    has_timestamps TINYINT(1) NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS review_events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    restaurant_id VARCHAR(64) NOT NULL,
    reviewed_at DATETIME(6) NOT NULL,
    KEY idx_review_events_restaurant (restaurant_id, reviewed_at)
)`,
}
