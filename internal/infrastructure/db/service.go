package db

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	badgerdb "github.com/ark-network/raffle/internal/infrastructure/db/badger"
	sqlitedb "github.com/ark-network/raffle/internal/infrastructure/db/sqlite"
	watermilldb "github.com/ark-network/raffle/internal/infrastructure/db/watermill"
)

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"watermill": newWatermillEventRepository,
	}
	roundStoreTypes = map[string]func(...interface{}) (domain.RoundRepository, error){
		"badger": badgerdb.NewRoundRepository,
		"sqlite": newSqliteRoundRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore domain.EventRepository
	roundStore domain.RoundRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid event store type: %s", config.EventStoreType)
	}

	roundStoreFactory, ok := roundStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	eventStore, err := eventStoreFactory(config.EventStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}

	roundStore, err := roundStoreFactory(config.DataStoreConfig...)
	if err != nil {
		eventStore.Close()
		return nil, fmt.Errorf("failed to create round store: %w", err)
	}

	return &service{
		eventStore: eventStore,
		roundStore: roundStore,
	}, nil
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Rounds() domain.RoundRepository {
	return s.roundStore
}

func (s *service) Close() {
	s.eventStore.Close()
	s.roundStore.Close()
}

// newWatermillEventRepository expects an optional watermill logger.
func newWatermillEventRepository(config ...interface{}) (domain.EventRepository, error) {
	var logger watermill.LoggerAdapter = watermill.NopLogger{}
	if len(config) > 0 && config[0] != nil {
		l, ok := config[0].(watermill.LoggerAdapter)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
		logger = l
	}

	// Publishing waits for the ack of the subscribers to keep batches ordered.
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return watermilldb.NewWatermillEventRepository(pubsub, pubsub), nil
}

// newSqliteRoundRepository expects the datadir, the db file is created and
// migrated if needed.
func newSqliteRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}

	var db *sql.DB
	var err error
	if len(baseDir) <= 0 {
		db, err = sqlitedb.OpenDb(":memory:")
	} else {
		db, err = sqlitedb.OpenDb(filepath.Join(baseDir, sqliteDbFile))
	}
	if err != nil {
		return nil, err
	}

	if err := sqlitedb.MigrateDb(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return sqlitedb.NewRoundRepository(db)
}
