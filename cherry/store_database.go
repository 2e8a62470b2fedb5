package cherry

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoredDocument is a named JSON document kept in the database, used by
// the 'database' store backend
type StoredDocument struct {
	Name string `gorm:"primaryKey" json:"name"`
	Data []byte `json:"data"`
	ModelUnixTime
}

type databaseStore struct {
	db DBI
}

func newDatabaseStore(db DBI) *databaseStore {
	return &databaseStore{db: db}
}

func (s *databaseStore) Load(ctx context.Context, name string) ([]byte, bool, error) {
	var doc StoredDocument
	err := s.db.DB().WithContext(ctx).Where("name = ?", name).Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc.Data, true, nil
}

func (s *databaseStore) Save(ctx context.Context, name string, data []byte) error {
	return s.db.Transaction(
		ctx,
		func(tx *gorm.DB) error {
			return tx.Unscoped().Clauses(
				clause.OnConflict{
					Columns:   []clause.Column{{Name: "name"}},
					DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at", "deleted_at"}),
				},
			).Create(&StoredDocument{Name: name, Data: data}).Error
		},
	)
}

func (s *databaseStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.Delete(ctx, &StoredDocument{}, "name = ?", name)
	return err
}
