package repository

import (
	"context"

	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/model"
)

type PropertyRepository interface {
	FindByID(ctx context.Context, id string) (*model.Property, error)
	ListByOwner(ctx context.Context, ownerUID string) ([]model.Property, error)
}

type propertyRepository struct {
	store gateway.Store
}

func NewPropertyRepository(store gateway.Store) PropertyRepository {
	return &propertyRepository{store: store}
}

func (r *propertyRepository) FindByID(ctx context.Context, id string) (*model.Property, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	doc, err := r.store.Get(ctx, CollectionProperties, id)
	if err != nil {
		return nil, err
	}
	return model.PropertyFromDocument(doc.ID, doc.Data), nil
}

func (r *propertyRepository) ListByOwner(ctx context.Context, ownerUID string) ([]model.Property, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	docs, err := r.store.Query(ctx, CollectionProperties,
		gateway.Query{}.Where("ownerId", gateway.OpEqual, ownerUID))
	if err != nil {
		return nil, err
	}
	list := make([]model.Property, 0, len(docs))
	for _, d := range docs {
		list = append(list, *model.PropertyFromDocument(d.ID, d.Data))
	}
	return list, nil
}
