package history

import "context"

func (s *Store) SetSchemaVersionForTest(version int) error {
	_, err := s.db.ExecContext(context.Background(), "UPDATE schema_version SET version = ?", version)
	return err
}
