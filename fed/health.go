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

package fed

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DomainHealth summarizes delivery outcomes against a single domain.
// Pending and retrying rows are not counted: only terminal outcomes say
// anything about the domain's health.
type DomainHealth struct {
	Host      string
	Software  string
	Delivered int64
	Failed    int64
	Retrying  int64
}

// FailureRate returns the share of terminal deliveries that failed.
func (h *DomainHealth) FailureRate() float64 {
	if h.Delivered+h.Failed == 0 {
		return 0
	}
	return float64(h.Failed) / float64(h.Delivered+h.Failed)
}

// Health aggregates delivery outcomes per domain since the given time,
// worst domains first.
func Health(ctx context.Context, db *sql.DB, since time.Time) ([]DomainHealth, error) {
	rows, err := db.QueryContext(
		ctx,
		`
		select
			deliveries.host,
			coalesce(instances.software, ''),
			count(*) filter (where deliveries.status = $1),
			count(*) filter (where deliveries.status = $2),
			count(*) filter (where deliveries.status = $3)
		from deliveries
		left join instances on instances.host = deliveries.host
		where deliveries.inserted >= $4
		group by deliveries.host
		order by count(*) filter (where deliveries.status = $2) desc, deliveries.host
		`,
		DeliveryDelivered,
		DeliveryFailed,
		DeliveryRetrying,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery health: %w", err)
	}
	defer rows.Close()

	var health []DomainHealth
	for rows.Next() {
		var h DomainHealth
		if err := rows.Scan(&h.Host, &h.Software, &h.Delivered, &h.Failed, &h.Retrying); err != nil {
			return nil, fmt.Errorf("failed to aggregate delivery health: %w", err)
		}
		health = append(health, h)
	}

	return health, rows.Err()
}
