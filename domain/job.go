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

import uuid "github.com/satori/go.uuid"

// DeliveryJob is the fully-denormalized unit the matcher pushes to the
// delivery queue (C4) and the worker pool consumes (C8). Denormalized so a
// worker never has to look anything up mid-delivery.
type DeliveryJob struct {
	EndpointID uuid.UUID `json:"endpoint_id"`
	AppID      uuid.UUID `json:"app_id"`
	WebhookURL string    `json:"webhook_url"`
	HMACSecret []byte    `json:"hmac_secret"`
	Event      Event     `json:"event"`

	Attempt            uint32 `json:"attempt"` // starts at 1
	MaxRetries         int32  `json:"max_retries"`
	TimeoutSeconds     int32  `json:"timeout_seconds"`
	RateLimitPerSecond int32  `json:"rate_limit_per_second"`
}

// NewDeliveryJob builds the first-attempt job for a matched endpoint/event
// pair.
func NewDeliveryJob(ep *Endpoint, ev Event) *DeliveryJob {
	return &DeliveryJob{
		EndpointID:         ep.EndpointID,
		AppID:              ep.AppID,
		WebhookURL:         ep.WebhookURL,
		HMACSecret:         ep.HMACSecret,
		Event:              ev,
		Attempt:            1,
		MaxRetries:         ep.MaxRetries,
		TimeoutSeconds:     ep.TimeoutSeconds,
		RateLimitPerSecond: ep.RateLimitPerSecond,
	}
}
