// Package storage selects and opens the event store backing the analytics
// service.
//
// # Backends
//
// Three implementations of analytics.EventStore are available:
//
//   - memory: users and events generated by analytics.GenerateSampleData and
//     kept in process. Inserts from the usage endpoint are held until exit.
//   - mongo: the UsageLog and User collections of a MongoDB database.
//   - postgres: the usage_events and users tables of a PostgreSQL database,
//     with optional read replicas for aggregation queries.
//
// Open picks the backend from Config.Type:
//
//	store, err := storage.Open(ctx, storage.Config{
//		Type:  storage.TypeMongo,
//		Mongo: mongo.Config{URI: "mongodb://localhost:27017/ai_saas"},
//	}, logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// # Errors
//
// Connectivity failures from every backend wrap analytics.ErrStoreUnavailable
// so callers can test them with errors.Is without knowing the backend.
//
// # Seeding
//
// Seed copies a generated dataset into a database backend, which gives a
// fresh MongoDB or PostgreSQL deployment the same demo data sample mode uses.
package storage
