package postgres

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// schemaStatements run after AutoMigrate. The trigger advances conversations.updated_at
// on every message insert and never moves it backwards.
var schemaStatements = []struct {
	name string
	sql  string
}{
	{
		name: "touch_conversation_updated_at",
		sql: `CREATE OR REPLACE FUNCTION touch_conversation_updated_at() RETURNS trigger AS $$
BEGIN
	UPDATE conversations
	SET updated_at = GREATEST(updated_at, now())
	WHERE id = NEW.conversation_id;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
	},
	{
		name: "drop messages_touch_conversation",
		sql:  `DROP TRIGGER IF EXISTS messages_touch_conversation ON messages`,
	},
	{
		name: "messages_touch_conversation",
		sql: `CREATE TRIGGER messages_touch_conversation
AFTER INSERT ON messages
FOR EACH ROW EXECUTE FUNCTION touch_conversation_updated_at()`,
	},
}

// Migrate creates or updates tables, the cascade foreign key, indexes and the trigger.
// The whole run is bounded by the migrate timeout.
func (s *Store) Migrate(ctx context.Context) error {
	if s.migrateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.migrateTimeout)
		defer cancel()
	}
	db := s.db.WithContext(ctx)

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		log.WithError(err).Warn("could not enable pgcrypto, relying on built-in gen_random_uuid")
	}

	if err := db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	for _, stmt := range schemaStatements {
		if err := db.Exec(stmt.sql).Error; err != nil {
			return fmt.Errorf("failed to apply %s: %w", stmt.name, err)
		}
		log.WithField("statement", stmt.name).Debug("applied schema statement")
	}

	log.Info("database schema is up to date")
	return nil
}
