// Copyright (C) 2025 the spdm-go authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"time"
)

// Config governs per-session policy that the wire protocol itself leaves
// to the implementation: how often a heartbeat is expected, and after how
// many secured messages in one direction a KEY_UPDATE should be driven.
type Config struct {
	HeartbeatPeriod    time.Duration `json:"heartbeatPeriod"`
	KeyUpdateThreshold int           `json:"keyUpdateThreshold"`
}

// DefaultConfig is used when a caller does not supply a Config.
func DefaultConfig() Config {
	return Config{
		HeartbeatPeriod:    30 * time.Second,
		KeyUpdateThreshold: 1 << 20,
	}
}

// Stats summarizes the occupancy of a Table.
type Stats struct {
	TotalSlots       int `json:"totalSlots"`
	UsedSlots        int `json:"usedSlots"`
	EstablishedSlots int `json:"establishedSlots"`
}
