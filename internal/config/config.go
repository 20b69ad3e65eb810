// Package config reads a per-node Java-properties-style key=value file
// (spec section 6.5) and resolves it into a typed Config, applying the
// documented defaults for every omitted key.
package config

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SeedServer is one entry of the comma-list seed.servers key: id:host:port.
type SeedServer struct {
	NodeID string
	Host   string
	Port   int
}

// Config is the resolved configuration surface for one node (spec
// section 6.5). Every key not present in the properties file falls back
// to its documented default.
type Config struct {
	ServerID   string
	ServerAddress string
	ServerPort int

	SyncPort                  int
	SyncIntervalMS            int
	CoordinatorCheckIntervalMS int

	IsBalancer  bool
	BalancerPort int

	SeedServers []SeedServer

	DataDirectory string
	UserServicePort int

	UserDataDirectory    string
	PostDataDirectory    string
	MessageDataDirectory string
}

const (
	defaultSyncPort                   = 6000
	defaultSyncIntervalMS             = 60000
	defaultCoordinatorCheckIntervalMS = 30000
	defaultBalancerPort               = 5000
	defaultUserServicePort            = 5555
)

// Load reads and parses a properties file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.IndexAny(line, "=:")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		props[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan config")
	}

	return resolve(props)
}

func resolve(props map[string]string) (*Config, error) {
	c := &Config{
		ServerID:                   propOrDefault(props, "server.id", randomID()),
		ServerAddress:              propOrDefault(props, "server.address", "127.0.0.1"),
		SyncPort:                   defaultSyncPort,
		SyncIntervalMS:             defaultSyncIntervalMS,
		CoordinatorCheckIntervalMS: defaultCoordinatorCheckIntervalMS,
		BalancerPort:               defaultBalancerPort,
		UserServicePort:            defaultUserServicePort,
	}

	var err error
	if c.ServerPort, err = intPropOrDefault(props, "server.port", 0); err != nil {
		return nil, err
	}
	if c.SyncPort, err = intPropOrDefault(props, "sync.port", defaultSyncPort); err != nil {
		return nil, err
	}
	if c.SyncIntervalMS, err = intPropOrDefault(props, "sync.interval.ms", defaultSyncIntervalMS); err != nil {
		return nil, err
	}
	if c.CoordinatorCheckIntervalMS, err = intPropOrDefault(props, "coordinator.check.interval.ms", defaultCoordinatorCheckIntervalMS); err != nil {
		return nil, err
	}
	if c.BalancerPort, err = intPropOrDefault(props, "balancer.port", defaultBalancerPort); err != nil {
		return nil, err
	}
	if c.UserServicePort, err = intPropOrDefault(props, "user.service.port", defaultUserServicePort); err != nil {
		return nil, err
	}

	c.IsBalancer = strings.EqualFold(props["is.balancer"], "true")
	c.DataDirectory = propOrDefault(props, "data.directory", "./data")
	c.UserDataDirectory = propOrDefault(props, "user.data.directory", c.DataDirectory)
	c.PostDataDirectory = propOrDefault(props, "post.data.directory", c.DataDirectory)
	c.MessageDataDirectory = propOrDefault(props, "message.data.directory", c.DataDirectory)

	if raw, ok := props["seed.servers"]; ok && raw != "" {
		seeds, err := parseSeedServers(raw)
		if err != nil {
			return nil, err
		}
		c.SeedServers = seeds
	}

	return c, nil
}

func propOrDefault(props map[string]string, key, def string) string {
	if v, ok := props[key]; ok && v != "" {
		return v
	}
	return def
}

func intPropOrDefault(props map[string]string, key string, def int) (int, error) {
	v, ok := props[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}

func parseSeedServers(raw string) ([]SeedServer, error) {
	parts := strings.Split(raw, ",")
	out := make([]SeedServer, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fields := strings.Split(p, ":")
		if len(fields) != 3 {
			return nil, errors.Errorf("malformed seed.servers entry %q, want id:host:port", p)
		}
		port, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "parse seed port in %q", p)
		}
		out = append(out, SeedServer{NodeID: fields[0], Host: fields[1], Port: port})
	}
	return out, nil
}

func randomID() string {
	return fmt.Sprintf("node-%04x", rand.Intn(0x10000))
}
