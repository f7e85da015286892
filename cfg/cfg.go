/*
Copyright 2025, 2026 the gather authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cfg defines the gather configuration file format and defaults.
package cfg

import (
	"regexp"
	"time"
)

// Config represents a gather configuration file.
type Config struct {
	DatabaseOptions string

	UserNameRegex         string
	CompiledUserNameRegex *regexp.Regexp `json:"-"`

	// KeySecret encrypts local actors' private keys at rest.
	// Keys are stored unencrypted if empty.
	KeySecret string

	MaxRequestBodySize  int64
	MaxRequestAge       time.Duration
	MaxResponseBodySize int64

	RequestTimeout time.Duration

	DeliveryBatchSize     int
	DeliveryRetryInterval int64
	MaxDeliveryAttempts   int
	DeliveryTimeout       time.Duration
	DeliveryWorkers       int
	DeliveryWorkerBuffer  int
	OutboxPollingInterval time.Duration

	InboxBatchSize            int
	InboxPollingInterval      time.Duration
	ActivityProcessingTimeout time.Duration
	ProcessedTTL              time.Duration

	MaxAudienceRequests int64

	ResolverCacheTTL        time.Duration
	ResolverRetryInterval   time.Duration
	ResolverMaxIdleConns    int
	ResolverIdleConnTimeout time.Duration
	MaxInstanceRecoveryTime time.Duration
	MaxResolverRequests     int

	KeyCacheTTL  time.Duration
	KeyCacheSize int

	InstanceQueueSize       int
	NodeInfoRefreshInterval time.Duration

	AvatarSize int

	GarbageCollectionInterval time.Duration
	DeliveryTTL               time.Duration
	ObjectTTL                 time.Duration
	ActorTTL                  time.Duration

	FillNodeInfoUsage bool
}

// FillDefaults replaces missing or invalid settings with defaults.
func (c *Config) FillDefaults() {
	if c.DatabaseOptions == "" {
		c.DatabaseOptions = "_journal_mode=WAL&_synchronous=1&_busy_timeout=5000"
	}

	if c.UserNameRegex == "" {
		c.UserNameRegex = `^[a-zA-Z0-9-_]{2,32}$`
	}

	c.CompiledUserNameRegex = regexp.MustCompile(c.UserNameRegex)

	if c.MaxRequestBodySize <= 0 {
		c.MaxRequestBodySize = 1024 * 1024
	}

	if c.MaxRequestAge <= 0 {
		c.MaxRequestAge = time.Minute * 5
	}

	if c.MaxResponseBodySize <= 0 {
		c.MaxResponseBodySize = 1024 * 1024
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = time.Second * 5
	}

	if c.DeliveryBatchSize <= 0 {
		c.DeliveryBatchSize = 16
	}

	if c.DeliveryRetryInterval <= 0 {
		c.DeliveryRetryInterval = int64((time.Minute * 5) / time.Second)
	}

	if c.MaxDeliveryAttempts <= 0 {
		c.MaxDeliveryAttempts = 5
	}

	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = time.Minute
	}

	if c.DeliveryWorkers <= 0 {
		c.DeliveryWorkers = 4
	}

	if c.DeliveryWorkerBuffer <= 0 {
		c.DeliveryWorkerBuffer = 16
	}

	if c.OutboxPollingInterval <= 0 {
		c.OutboxPollingInterval = time.Second * 5
	}

	if c.InboxBatchSize <= 0 {
		c.InboxBatchSize = 64
	}

	if c.InboxPollingInterval <= 0 {
		c.InboxPollingInterval = time.Second * 5
	}

	if c.ActivityProcessingTimeout <= 0 {
		c.ActivityProcessingTimeout = time.Second * 15
	}

	if c.ProcessedTTL <= 0 {
		c.ProcessedTTL = time.Hour * 24 * 30
	}

	if c.MaxAudienceRequests <= 0 {
		c.MaxAudienceRequests = 10
	}

	if c.ResolverCacheTTL <= 0 {
		c.ResolverCacheTTL = time.Hour * 24 * 3
	}

	if c.ResolverRetryInterval <= 0 {
		c.ResolverRetryInterval = time.Hour * 6
	}

	if c.ResolverMaxIdleConns <= 0 {
		c.ResolverMaxIdleConns = 128
	}

	if c.ResolverIdleConnTimeout <= 0 {
		c.ResolverIdleConnTimeout = time.Minute
	}

	if c.MaxInstanceRecoveryTime <= 0 {
		c.MaxInstanceRecoveryTime = time.Hour * 24 * 30
	}

	if c.MaxResolverRequests <= 0 {
		c.MaxResolverRequests = 16
	}

	if c.KeyCacheTTL <= 0 {
		c.KeyCacheTTL = time.Hour
	}

	if c.KeyCacheSize <= 0 {
		c.KeyCacheSize = 1024
	}

	if c.InstanceQueueSize <= 0 {
		c.InstanceQueueSize = 256
	}

	if c.NodeInfoRefreshInterval <= 0 {
		c.NodeInfoRefreshInterval = time.Hour * 6
	}

	if c.AvatarSize <= 0 {
		c.AvatarSize = 64
	}

	if c.GarbageCollectionInterval <= 0 {
		c.GarbageCollectionInterval = time.Hour * 12
	}

	if c.DeliveryTTL <= 0 {
		c.DeliveryTTL = time.Hour * 24 * 7
	}

	if c.ObjectTTL <= 0 {
		c.ObjectTTL = time.Hour * 24 * 30
	}

	if c.ActorTTL <= 0 {
		c.ActorTTL = time.Hour * 24 * 7
	}
}
