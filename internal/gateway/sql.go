package gateway

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow is the single table behind SQLStore. Each row is one document
// serialized as JSON.
type documentRow struct {
	Collection string         `gorm:"column:collection;primaryKey;size:64"`
	ID         string         `gorm:"column:id;primaryKey;size:64"`
	Data       datatypes.JSON `gorm:"column:data;not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (documentRow) TableName() string {
	return "documents"
}

// SQLStore emulates the document gateway on a relational database through
// gorm. String equality filters run in the database against the JSON column;
// every filter, the order and the limit are then applied in process to the
// narrowed rows. Subscriptions only observe writes made through the same
// SQLStore.
type SQLStore struct {
	db  *gorm.DB
	hub *hub
}

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("sql store requires a database")
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate documents table")
	}
	jww.INFO.Printf("[gateway] sql document store ready (%s)", db.Dialector.Name())
	return &SQLStore{db: db, hub: newHub()}, nil
}

// jsonField limits pushed-down paths to plain dotted identifiers.
var jsonField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

type sqlPredicate struct {
	expr string
	args []interface{}
}

// pushdown returns the filters the database can narrow rows by. It only ever
// selects a superset of what evaluate keeps.
func pushdown(dialect string, filters []Filter) []sqlPredicate {
	var extract string
	switch dialect {
	case "mysql":
		extract = "JSON_UNQUOTE(JSON_EXTRACT(data, ?)) = ?"
	case "sqlite":
		extract = "json_extract(data, ?) = ?"
	default:
		return nil
	}
	var out []sqlPredicate
	for _, f := range filters {
		v, ok := f.Value.(string)
		if f.Op != OpEqual || !ok || !jsonField.MatchString(f.Field) {
			continue
		}
		out = append(out, sqlPredicate{expr: extract, args: []interface{}{"$." + f.Field, v}})
	}
	return out
}

func (s *SQLStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	var rows []documentRow
	tx := s.db.WithContext(ctx).Where("collection = ?", collection)
	for _, p := range pushdown(s.db.Dialector.Name(), q.Filters) {
		tx = tx.Where(p.expr, p.args...)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		data, err := decodeData(r.Data)
		if err != nil {
			jww.WARN.Printf("[gateway] skipping undecodable %s/%s: %+v", collection, r.ID, err)
			continue
		}
		docs = append(docs, Document{ID: r.ID, Data: data})
	}
	return evaluate(docs, q), nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	data, err := decodeData(row.Data)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: row.ID, Data: data}, nil
}

func (s *SQLStore) Insert(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generate document id")
	}
	if err := s.Set(ctx, collection, id.String(), data); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Set stores data under a caller-chosen id, replacing any existing document.
func (s *SQLStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	b, err := encodeData(normalizeMap(data))
	if err != nil {
		return err
	}
	row := documentRow{Collection: collection, ID: id, Data: datatypes.JSON(b)}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error; err != nil {
		return errors.Wrapf(err, "write %s/%s", collection, id)
	}
	s.hub.publish(collection)
	return nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("collection = ? AND id = ?", collection, id)
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row documentRow
		if err := q.Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
			}
			return err
		}
		data, err := decodeData(row.Data)
		if err != nil {
			return err
		}
		applyPatch(data, patch)
		b, err := encodeData(data)
		if err != nil {
			return err
		}
		return tx.Model(&documentRow{}).
			Where("collection = ? AND id = ?", collection, id).
			Update("data", datatypes.JSON(b)).Error
	})
	if err != nil {
		return errors.WithMessagef(err, "update %s/%s", collection, id)
	}
	s.hub.publish(collection)
	return nil
}

func (s *SQLStore) Subscribe(ctx context.Context, collection string, q Query,
	onChange func([]Document), onError func(error)) (Subscription, error) {
	fetch := func(fctx context.Context) ([]Document, error) {
		return s.Query(fctx, collection, q)
	}
	return s.hub.subscribe(ctx, collection, fetch, onChange, onError), nil
}

func (s *SQLStore) Subscriptions() int {
	return s.hub.count()
}

func (s *SQLStore) Close() error {
	s.hub.closeAll()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
