package queue

import (
	"os"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultName = "queue"
	DefaultType = amqp.ExchangeDirect

	// AMQPRxURLEnv and AMQPTxURLEnv are read when an AMQP endpoint is FromEnv.
	AMQPRxURLEnv = "RABBITMQ_BIGWIG_RX_URL"
	AMQPTxURLEnv = "RABBITMQ_BIGWIG_TX_URL"

	// RedisRxURLEnv and RedisTxURLEnv are read when a Redis endpoint is FromEnv,
	// falling back to RedisURLEnv.
	RedisRxURLEnv = "REDISCLOUD_RX_URL"
	RedisTxURLEnv = "REDISCLOUD_TX_URL"
	RedisURLEnv   = "REDISCLOUD_URL"
)

// Direction identifies one half of a queue: RX consumes, TX publishes.
type Direction string

const (
	RX Direction = "rx"
	TX Direction = "tx"
)

// EnvLookup resolves an environment variable. os.LookupEnv satisfies it.
type EnvLookup func(key string) (string, bool)

// Endpoint is either absent (zero value), a literal address, or a request to
// resolve the address from the environment at construction time.
type Endpoint struct {
	addr    string
	fromEnv bool
}

// Address returns an endpoint pointing at a literal broker URL.
func Address(url string) Endpoint {
	return Endpoint{addr: url}
}

// AddressFromURI builds an AMQP endpoint from its parts.
func AddressFromURI(uri amqp.URI) Endpoint {
	return Endpoint{addr: uri.String()}
}

// FromEnv returns the sentinel endpoint resolved from the backend's well-known
// environment variables.
func FromEnv() Endpoint {
	return Endpoint{fromEnv: true}
}

// IsSet reports whether the direction was configured at all.
func (e Endpoint) IsSet() bool {
	return e.fromEnv || e.addr != ""
}

// Addr returns the literal or resolved address. It is empty for an absent
// endpoint and for an environment endpoint whose variables are unset.
func (e Endpoint) Addr() string {
	return e.addr
}

func (e Endpoint) resolve(lookup EnvLookup, keys ...string) Endpoint {
	if !e.fromEnv || e.addr != "" {
		return e
	}

	for _, key := range keys {
		if v, ok := lookup(key); ok && v != "" {
			return Endpoint{addr: v, fromEnv: true}
		}
	}

	return e
}

// QueueOptions are passed through to the queue declaration.
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	// ServerNamed lets the broker generate an exclusive queue name for the RX
	// connection, so every consumer instance gets its own copy of fanout traffic.
	ServerNamed bool
	Args        amqp.Table
}

// ExchangeOptions are passed through to the exchange declaration.
type ExchangeOptions struct {
	Durable    bool
	AutoDelete bool
	Internal   bool
	Args       amqp.Table
}

// Config describes one queue instance.
type Config struct {
	Name         string
	Type         string
	ExchangeName string
	Queue        QueueOptions
	Exchange     ExchangeOptions
	RX           Endpoint
	TX           Endpoint
	// AutoAck acknowledges each delivery as soon as it is received. When false
	// the handler owns acknowledgement through Ack/Nack.
	AutoAck bool
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}

	if c.Type == "" {
		c.Type = DefaultType
	}

	if c.ExchangeName == "" {
		c.ExchangeName = c.Name
	}

	return c
}

func (c Config) endpoint(dir Direction) Endpoint {
	if dir == RX {
		return c.RX
	}

	return c.TX
}

func defaultEnvLookup() EnvLookup {
	return os.LookupEnv
}
