package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	Internal        Category = "Internal"
	Relay           Category = "Relay"
	Presence        Category = "Presence"
	Chat            Category = "Chat"
	Snapshot        Category = "Snapshot"
	Mongo           Category = "Mongo"
	Redis           Category = "Redis"
	Sqlite          Category = "Sqlite"
	RabbitMQ        Category = "RabbitMQ"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Relay
	Connect    SubCategory = "Connect"
	Disconnect SubCategory = "Disconnect"
	Join       SubCategory = "Join"
	Leave      SubCategory = "Leave"
	Dispatch   SubCategory = "Dispatch"
	Deliver    SubCategory = "Deliver"

	// Persistence
	Append  SubCategory = "Append"
	History SubCategory = "History"
	Save    SubCategory = "Save"
	Load    SubCategory = "Load"
	Migrate SubCategory = "Migrate"

	// Messaging
	Publish SubCategory = "Publish"
	Consume SubCategory = "Consume"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
	BoardID      ExtraKey = "BoardId"
	ConnectionID ExtraKey = "ConnectionId"
	UserID       ExtraKey = "UserId"
	Event        ExtraKey = "Event"
	Members      ExtraKey = "Members"
)
