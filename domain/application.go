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

// Application is owned and CRUD'd by the admin collaborator; the core only
// reads it (for the fallback webhook secret an endpoint may omit).
type Application struct {
	AppID        uuid.UUID `gorm:"column:id;primary_key" json:"app_id"`
	OwnerUserID  uuid.UUID `gorm:"column:user_id" json:"owner_user_id"`
	Name         string    `gorm:"column:name" json:"name"`
	APIKey       string    `gorm:"column:api_key" json:"-"`
	WebhookSecret string   `gorm:"column:webhook_secret" json:"-"`
	IsActive     bool      `gorm:"column:is_active" json:"is_active"`
}

// TableName pins the gorm v1 table name (teacher convention: explicit
// TableName methods rather than relying on pluralization guesses).
func (Application) TableName() string { return "applications" }
