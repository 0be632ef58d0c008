// Package config loads process configuration for the connection-protocol
// core, the way findy-agent's utils.Settings does: a struct of settings
// populated once at startup from the environment, optionally seeded from
// a .env file for local development.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

// Settings holds every external knob the core and its cmd/ wiring need.
type Settings struct {
	AgencyGRPCAddr       string
	AgencyEndpoint       string
	AgencyAuthSecret     string
	CallerAgentDID       string
	RoutingKeys          []string
	HandleCacheName      string
	UpdateStateRetryMax  int
	UpdateStateRetryWait time.Duration
	OwnLabel             string
}

// Load reads settings from the environment, loading a .env file first if
// present (ignored silently if absent, same tolerance godotenv documents).
func Load() (s Settings, err error) {
	if loadErr := godotenv.Load(); loadErr != nil {
		glog.V(2).Infof("no .env file loaded: %v", loadErr)
	}

	s = Settings{
		AgencyGRPCAddr:       getEnv("AGENCY_GRPC_ADDR", "localhost:7654"),
		AgencyEndpoint:       getEnv("AGENCY_ENDPOINT", "https://agency.example.org"),
		AgencyAuthSecret:     getEnv("AGENCY_AUTH_SECRET", ""),
		CallerAgentDID:       getEnv("CALLER_AGENT_DID", "connectionctl"),
		HandleCacheName:      getEnv("HANDLE_CACHE_NAME", "connections-cache"),
		UpdateStateRetryMax:  3,
		UpdateStateRetryWait: 200 * time.Millisecond,
		OwnLabel:             getEnv("OWN_LABEL", "connectionctl"),
	}

	if rk := os.Getenv("ROUTING_KEYS"); rk != "" {
		for _, k := range strings.Split(rk, ",") {
			if k = strings.TrimSpace(k); k != "" {
				s.RoutingKeys = append(s.RoutingKeys, k)
			}
		}
	}

	if v := os.Getenv("UPDATE_STATE_RETRY_MAX"); v != "" {
		n, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			return s, errors.New("UPDATE_STATE_RETRY_MAX must be an integer: " + parseErr.Error())
		}
		s.UpdateStateRetryMax = n
	}

	if err = s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate mirrors findy-agent's cmds.Cmd.Validate convention: return a
// plain error describing what's wrong, never panic.
func (s Settings) Validate() error {
	if s.AgencyGRPCAddr == "" {
		return errors.New("AGENCY_GRPC_ADDR cannot be empty")
	}
	if s.AgencyEndpoint == "" {
		return errors.New("AGENCY_ENDPOINT cannot be empty")
	}
	if s.HandleCacheName == "" {
		return errors.New("HANDLE_CACHE_NAME cannot be empty")
	}
	if s.UpdateStateRetryMax < 0 {
		return errors.New("UPDATE_STATE_RETRY_MAX cannot be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
