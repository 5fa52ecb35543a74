// Copyright (c) 2022 Shanghai Xinbida Network Technology Co., Ltd. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wraft

import "time"

type Monitor interface {
	// SetProposalsCommitted sets the highest committed log index.
	SetProposalsCommitted(proposalsCommitted uint64)
	// SetProposalsApplied sets the highest applied log index.
	SetProposalsApplied(proposalsApplied uint64)
	// LeaderChangesInc increments the number of leader changes.
	LeaderChangesInc()
	// SendFailuresInc increments the number of raft messages that failed to send.
	SendFailuresInc()

	ProposalsFailedInc()

	ProposalsPendingInc()

	ProposalsPendingDec()

	// ReadIndexObserve records the latency of a leadership confirmation.
	ReadIndexObserve(d time.Duration, ok bool)
}

type emptyMonitor struct{}

func (e *emptyMonitor) SetProposalsCommitted(proposalsCommitted uint64) {}
func (e *emptyMonitor) SetProposalsApplied(proposalsApplied uint64)     {}
func (e *emptyMonitor) LeaderChangesInc()                               {}
func (e *emptyMonitor) SendFailuresInc()                                {}

func (e *emptyMonitor) ProposalsFailedInc()  {}
func (e *emptyMonitor) ProposalsPendingInc() {}
func (e *emptyMonitor) ProposalsPendingDec() {}

func (e *emptyMonitor) ReadIndexObserve(d time.Duration, ok bool) {}
