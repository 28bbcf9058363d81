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

package log

// Module identifies the subsystem a logger speaks for. Every package that
// wants a logger declares its own constant here, the way the rest of the
// repo does via log.NewModuleLogger(log.XXX).
type Module string

const (
	ModuleIngestor     Module = "ingestor"
	ModuleMatcher      Module = "matcher"
	ModuleDelivery     Module = "delivery"
	ModuleConfigStore  Module = "configstore"
	ModuleDedup        Module = "dedup"
	ModuleEventLog     Module = "eventlog"
	ModuleQueue        Module = "queue"
	ModuleJournal      Module = "journal"
	ModuleBreaker      Module = "breaker"
	ModuleClient       Module = "rpcclient"
	ModuleCommon       Module = "common"
	ModuleCMD          Module = "cmd"
	ModuleDebug        Module = "debug"
	ModuleMetrics      Module = "metrics"
)
