// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package domain

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

// MaxResponseBodyBytes bounds the response body persisted in an
// AttemptRecord (spec §3: "truncated to 10 KiB").
const MaxResponseBodyBytes = 10 * 1024

// AttemptRecord is an append-only audit row written to the Attempt Journal
// (C5) for every completed delivery attempt: success, retryable failure,
// terminal failure, or circuit-skipped.
type AttemptRecord struct {
	ID             uuid.UUID `gorm:"column:id;primary_key" json:"id"`
	EndpointID     uuid.UUID `gorm:"column:endpoint_id" json:"endpoint_id"`
	AttemptNumber  uint32    `gorm:"column:attempt_number" json:"attempt_number"`
	HTTPStatusCode *int      `gorm:"column:http_status_code" json:"http_status_code,omitempty"`
	ResponseBody   string    `gorm:"column:response_body" json:"response_body,omitempty"`
	ErrorMessage   *string   `gorm:"column:error_message" json:"error_message,omitempty"`
	AttemptedAt    time.Time `gorm:"column:attempted_at" json:"attempted_at"`
	CompletedAt    time.Time `gorm:"column:completed_at" json:"completed_at"`
	DurationMs     int64     `gorm:"column:duration_ms" json:"duration_ms"`
	Success        bool      `gorm:"column:success" json:"success"`
	ShouldRetry    bool      `gorm:"column:should_retry" json:"should_retry"`
}

func (AttemptRecord) TableName() string { return "delivery_attempts" }

// TruncateResponseBody caps body at MaxResponseBodyBytes, matching the
// truncation performed before persisting (spec §3, §4.3).
func TruncateResponseBody(body []byte) string {
	if len(body) > MaxResponseBodyBytes {
		body = body[:MaxResponseBodyBytes]
	}
	return string(body)
}
