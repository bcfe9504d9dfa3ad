package constant

import "time"

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	CheckpointKeyPrefix = "sync_states"
	FailedIndexPrefix   = "failed_indexes"

	DefaultBlockInterval   = 1000 * time.Millisecond
	DefaultRelayInterval   = 10 * time.Millisecond
	DefaultClientTimeout   = 30 * time.Second
	DefaultFanoutBuffer    = 1024
	DefaultSendTimeout     = 5 * time.Second
	DefaultFailoverRetries = 3
)

// Fan-out channel names shared by producers and sinks.
const (
	SinkPostgres = "postgres"
	SinkSlack    = "slack"
	SinkEvents   = "events"
)
