// Package serverconfig is metad's static TOML configuration, grounded on
// the teacher's gm/config.go: an embedded default, overlaid by an optional
// file, then validated by a single adjust() pass.
package serverconfig

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fgr-araujo/nebula/internal/log"
)

// DefaultConfig is decoded first; any config file supplied to NewConfig is
// decoded over it, so unset sections fall back to these values.
const DefaultConfig = `
[module]
data-path = "/tmp/nebula/metad/data"

[log]
log-path = "/tmp/nebula/metad/log"
level = "info"

[cluster]
kv-backend = "bolt"
etcd-endpoints = "127.0.0.1:2379"
balance-concurrency = 4
config-poll-interval-secs = 10
rpc-port = 45500
admin-rpc-timeout-secs = 30
`

const (
	KVBackendBolt  = "bolt"
	KVBackendEtcd3 = "etcd3"

	logLevelDebug = "debug"
	logLevelInfo  = "info"
	logLevelWarn  = "warn"
	logLevelError = "error"
)

// Config is metad's full static configuration.
type Config struct {
	Module  ModuleConfig  `toml:"module"`
	Log     LogConfig     `toml:"log"`
	Cluster ClusterConfig `toml:"cluster"`
}

type ModuleConfig struct {
	DataPath string `toml:"data-path"`
}

type LogConfig struct {
	LogPath string `toml:"log-path"`
	Level   string `toml:"level"`
}

type ClusterConfig struct {
	KVBackend              string       `toml:"kv-backend"`
	EtcdEndpoints          string       `toml:"etcd-endpoints"`
	BalanceConcurrency     int          `toml:"balance-concurrency"`
	ConfigPollIntervalSecs int          `toml:"config-poll-interval-secs"`
	RPCPort                uint32       `toml:"rpc-port"`
	AdminRPCTimeoutSecs    int          `toml:"admin-rpc-timeout-secs"`
	Spaces                 []SpaceEntry `toml:"spaces"`
}

// SpaceEntry is a statically configured graph space. Space creation is an
// out-of-scope CRUD pipeline (spec §1); metad still needs to know which
// spaces exist to balance them, so this repository takes them from static
// config rather than inventing a new KV-persisted space registry that
// would add a key tag outside the closed layout of spec §6.
type SpaceEntry struct {
	ID             uint32 `toml:"id"`
	Name           string `toml:"name"`
	PartitionCount int32  `toml:"partition-count"`
	ReplicaFactor  int32  `toml:"replica-factor"`
}

// EtcdEndpointList splits the comma-separated endpoint string.
func (c ClusterConfig) EtcdEndpointList() []string {
	var out []string
	for _, e := range strings.Split(c.EtcdEndpoints, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// ConfigPollInterval is the section's interval as a time.Duration.
func (c ClusterConfig) ConfigPollInterval() time.Duration {
	return time.Duration(c.ConfigPollIntervalSecs) * time.Second
}

// AdminRPCTimeout is the section's admin-rpc-timeout-secs as a
// time.Duration. cmd/metad passes it to etcd3kv.Dial as the etcd dial
// timeout; the balance admin client does not read it and keeps its own
// fixed 30s per-call timeout.
func (c ClusterConfig) AdminRPCTimeout() time.Duration {
	return time.Duration(c.AdminRPCTimeoutSecs) * time.Second
}

// NewConfig decodes DefaultConfig, overlays path if non-empty, validates,
// and returns the result. Mirrors the teacher's NewConfig(path) shape
// exactly, panicking on malformed config the same way gm does — this runs
// once at process startup, before logging or metrics exist to report to.
func NewConfig(path string) *Config {
	c := new(Config)
	if _, err := toml.Decode(DefaultConfig, c); err != nil {
		log.Panic("serverconfig: failed to decode embedded default config: %v", err)
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			log.Panic("serverconfig: failed to decode config file %v: %v", path, err)
		}
	}

	c.adjust()
	return c
}

func (c *Config) adjust() {
	c.Module.adjust()
	c.Log.adjust()
	c.Cluster.adjust()
}

func (m *ModuleConfig) adjust() {
	requireString(m.DataPath, "module.data-path")
	if _, err := os.Stat(m.DataPath); os.IsNotExist(err) {
		if err := os.MkdirAll(m.DataPath, os.ModePerm); err != nil {
			log.Panic("serverconfig: failed to create data path %v: %v", m.DataPath, err)
		}
	}
}

func (l *LogConfig) adjust() {
	requireString(l.LogPath, "log.log-path")
	if _, err := os.Stat(l.LogPath); os.IsNotExist(err) {
		if err := os.MkdirAll(l.LogPath, os.ModePerm); err != nil {
			log.Panic("serverconfig: failed to create log path %v: %v", l.LogPath, err)
		}
	}

	l.Level = strings.ToLower(l.Level)
	switch l.Level {
	case logLevelDebug, logLevelInfo, logLevelWarn, logLevelError:
	default:
		log.Panic("serverconfig: invalid log level %v", l.Level)
	}
}

func (c *ClusterConfig) adjust() {
	switch c.KVBackend {
	case KVBackendBolt, KVBackendEtcd3:
	default:
		log.Panic("serverconfig: invalid cluster.kv-backend %v", c.KVBackend)
	}
	if c.KVBackend == KVBackendEtcd3 {
		requireString(c.EtcdEndpoints, "cluster.etcd-endpoints")
	}
	if c.BalanceConcurrency <= 0 {
		log.Panic("serverconfig: cluster.balance-concurrency must be positive")
	}
	if c.ConfigPollIntervalSecs <= 0 {
		log.Panic("serverconfig: cluster.config-poll-interval-secs must be positive")
	}
	if c.RPCPort == 0 {
		log.Panic("serverconfig: cluster.rpc-port must be set")
	}
	if c.AdminRPCTimeoutSecs <= 0 {
		log.Panic("serverconfig: cluster.admin-rpc-timeout-secs must be positive")
	}

	seen := make(map[uint32]bool, len(c.Spaces))
	for _, s := range c.Spaces {
		if seen[s.ID] {
			log.Panic("serverconfig: duplicate space id %v in cluster.spaces", s.ID)
		}
		seen[s.ID] = true
		if s.PartitionCount <= 0 || s.ReplicaFactor <= 0 {
			log.Panic("serverconfig: space %v must have positive partition-count and replica-factor", s.ID)
		}
	}
}

func requireString(v, field string) {
	if v == "" {
		log.Panic("serverconfig: missing required field %v", field)
	}
}
