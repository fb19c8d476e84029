package ports

import (
	"context"

	"github.com/architeacher/svc-pubsub/internal/domain"
)

type (
	// ObjectSaver persists an object and returns a fresh instance carrying its identity.
	ObjectSaver interface {
		SaveObject(ctx context.Context, obj domain.Object) (domain.Object, error)
	}

	// ObjectFinder loads objects into new instances of the prototype's type.
	ObjectFinder interface {
		GetObject(ctx context.Context, id string, prototype domain.Object) (domain.Object, error)
		FindObjects(ctx context.Context, prototype domain.Object, filter map[string]any) ([]domain.Object, error)
	}

	// ObjectDeleter removes an object by its identity.
	ObjectDeleter interface {
		DeleteObject(ctx context.Context, obj domain.Object) (domain.Object, error)
	}

	Mapper interface {
		Connect(ctx context.Context) error
		Close() error
		Ping(ctx context.Context) error

		ObjectSaver
		ObjectFinder
		ObjectDeleter
	}
)
