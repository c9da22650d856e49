// Package config loads tally configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence (environment
// wins).
//
// # Server
//
//	TALLY_HOST="0.0.0.0"
//	TALLY_PORT="8000"
//	TALLY_READ_TIMEOUT="15s"
//	TALLY_WRITE_TIMEOUT="30s"
//	TALLY_CORS_ORIGINS="https://app.example.com,https://admin.example.com"
//	TALLY_USER_EVENT_LIMIT="1000"
//
// # Event Store
//
//	TALLY_STORE_TYPE="sample"  # sample, mongo, postgres
//	MONGODB_URI="mongodb://localhost:27017/ai_saas"
//	TALLY_POSTGRES_URL="postgres://localhost/tally"
//	TALLY_POSTGRES_REPLICA_URLS="postgres://replica1/tally,postgres://replica2/tally"
//	TALLY_SAMPLE_SEED="42"
//
// # Plan Cache
//
//	TALLY_CACHE_ENABLED="true"
//	TALLY_REDIS_URL="redis://localhost:6379/0"
//
// # Reporter
//
//	TALLY_REPORT_SCHEDULE="@hourly"
//	TALLY_REPORT_FORMAT="json"  # json, yaml
//	TALLY_S3_BUCKET="tally-snapshots"
//
// # Observability
//
//	TALLY_LOG_LEVEL="info"
//	TALLY_OTEL_ENABLED="false"
//	TALLY_OTEL_ENDPOINT="localhost:4317"
//
// # File
//
// TALLY_CONFIG_FILE names a YAML file with the same settings grouped under
// server, store, cache, report and observability:
//
//	server:
//	  port: "8000"
//	store:
//	  type: mongo
//	  mongo:
//	    uri: mongodb://localhost:27017/ai_saas
package config
