package clickhouse

import (
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption adjusts the driver options built by NewClient.
type ClientOption func(*clickhouse.Options) error

// WithDSN replaces everything set so far with a parsed clickhouse:// DSN.
func WithDSN(dsn string) ClientOption {
	return func(o *clickhouse.Options) error {
		parsed, err := clickhouse.ParseDSN(dsn)
		if err != nil {
			return fmt.Errorf("clickhouse dsn: %w", err)
		}
		*o = *parsed
		return nil
	}
}

func WithHost(host string, port int) ClientOption {
	return func(o *clickhouse.Options) error {
		if host == "" {
			return nil
		}
		if port <= 0 {
			port = 9000
		}
		o.Addr = []string{fmt.Sprintf("%s:%d", host, port)}
		return nil
	}
}

func WithDatabase(database string) ClientOption {
	return func(o *clickhouse.Options) error {
		if database != "" {
			o.Auth.Database = database
		}
		return nil
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(o *clickhouse.Options) error {
		if user != "" {
			o.Auth.Username = user
		}
		o.Auth.Password = password
		return nil
	}
}

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(o *clickhouse.Options) error {
		o.MaxOpenConns, o.MaxIdleConns = maxOpen, maxIdle
		return nil
	}
}

func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(o *clickhouse.Options) error {
		o.DialTimeout, o.ReadTimeout = dial, read
		return nil
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) ClientOption {
	return func(o *clickhouse.Options) error {
		if on {
			o.Protocol = clickhouse.HTTP
		}
		return nil
	}
}

// WithAsyncInsert turns on server-side insert buffering. With wait set,
// an insert returns only once its buffer is flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(o *clickhouse.Options) error {
		if !enabled {
			return nil
		}
		setting(o, "async_insert", 1)
		if wait {
			setting(o, "wait_for_async_insert", 1)
		}
		return nil
	}
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(o *clickhouse.Options) error {
		if d > 0 {
			setting(o, "max_execution_time", int(d.Seconds()))
		}
		return nil
	}
}

func setting(o *clickhouse.Options, name string, v interface{}) {
	if o.Settings == nil {
		o.Settings = clickhouse.Settings{}
	}
	o.Settings[name] = v
}
