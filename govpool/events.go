// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/inconshreveable/log15"
)

// EventKind names a state transition for sinks and log lines.
type EventKind string

const (
	KindProposalCreated      EventKind = "proposal_created"
	KindProposalApproved     EventKind = "proposal_approved"
	KindProposalExecuted     EventKind = "proposal_executed"
	KindQuorumUpdated        EventKind = "quorum_updated"
	KindAccountFlagged       EventKind = "account_flagged"
	KindPoolCreated          EventKind = "pool_created"
	KindPoolDeleted          EventKind = "pool_deleted"
	KindJoinRequestSubmitted EventKind = "join_request_submitted"
	KindJoinVoteCast         EventKind = "join_vote_cast"
	KindJoinRequestResolved  EventKind = "join_request_resolved"
	KindMemberAdded          EventKind = "member_added"
	KindMemberRemoved        EventKind = "member_removed"
)

// Event is a structured record of one committed state transition. Events are
// emitted after the transition is durably applied, never for failed calls.
type Event interface {
	Kind() EventKind
}

type ProposalCreated struct {
	Proposal Proposal       `json:"proposal"`
	Actor    common.Address `json:"actor"`
	Time     int64          `json:"time"`
}

func (ProposalCreated) Kind() EventKind { return KindProposalCreated }

type ProposalApproved struct {
	ProposalID common.Hash    `json:"proposalId"`
	Actor      common.Address `json:"actor"`
	Approvals  uint32         `json:"approvals"`
	Time       int64          `json:"time"`
}

func (ProposalApproved) Kind() EventKind { return KindProposalApproved }

type ProposalExecuted struct {
	Proposal Proposal       `json:"proposal"`
	Actor    common.Address `json:"actor"`
	Time     int64          `json:"time"`
}

func (ProposalExecuted) Kind() EventKind { return KindProposalExecuted }

type QuorumUpdated struct {
	Role   RoleID         `json:"role"`
	Quorum uint32         `json:"quorum"`
	Actor  common.Address `json:"actor"`
	Time   int64          `json:"time"`
}

func (QuorumUpdated) Kind() EventKind { return KindQuorumUpdated }

type AccountFlagged struct {
	Account common.Address `json:"account"`
	Flagged bool           `json:"flagged"`
	Actor   common.Address `json:"actor"`
	Time    int64          `json:"time"`
}

func (AccountFlagged) Kind() EventKind { return KindAccountFlagged }

type PoolCreated struct {
	Pool Pool  `json:"pool"`
	Time int64 `json:"time"`
}

func (PoolCreated) Kind() EventKind { return KindPoolCreated }

type PoolDeleted struct {
	PoolID uint32         `json:"poolId"`
	Actor  common.Address `json:"actor"`
	Time   int64          `json:"time"`
}

func (PoolDeleted) Kind() EventKind { return KindPoolDeleted }

type JoinRequestSubmitted struct {
	Request JoinRequest `json:"request"`
	Time    int64       `json:"time"`
}

func (JoinRequestSubmitted) Kind() EventKind { return KindJoinRequestSubmitted }

// JoinVoteCast reports one recorded vote that did not necessarily resolve
// the request; a resolving vote is followed by JoinRequestResolved in the
// same emission batch.
type JoinVoteCast struct {
	PoolID      uint32         `json:"poolId"`
	RequestPeer string         `json:"requestPeerId"`
	Voter       common.Address `json:"voter"`
	Approve     bool           `json:"approve"`
	Approvals   uint32         `json:"approvals"`
	Rejections  uint32         `json:"rejections"`
	Time        int64          `json:"time"`
}

func (JoinVoteCast) Kind() EventKind { return KindJoinVoteCast }

// JoinRequestResolved reports the terminal outcome of a join request.
// Forfeited is set only for rejections that kept the requester's stake.
type JoinRequestResolved struct {
	Request   JoinRequest    `json:"request"`
	Outcome   RequestStatus  `json:"outcome"`
	Forfeited bool           `json:"forfeited"`
	Actor     common.Address `json:"actor"`
	Time      int64          `json:"time"`
}

func (JoinRequestResolved) Kind() EventKind { return KindJoinRequestResolved }

type MemberAdded struct {
	PoolID uint32         `json:"poolId"`
	Member Member         `json:"member"`
	Actor  common.Address `json:"actor"`
	Time   int64          `json:"time"`
}

func (MemberAdded) Kind() EventKind { return KindMemberAdded }

type MemberRemoved struct {
	PoolID    uint32         `json:"poolId"`
	Member    Member         `json:"member"`
	Forfeited bool           `json:"forfeited"`
	Actor     common.Address `json:"actor"`
	Time      int64          `json:"time"`
}

func (MemberRemoved) Kind() EventKind { return KindMemberRemoved }

// Sink receives events from the engine. Accept is called after the
// transition committed, while the record's lock is still held, so
// implementations must not call back into the engine.
type Sink interface {
	Accept(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Accept(Event) {}

// MemorySink retains every event in order. Intended for tests and the
// simulation harness.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Accept(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a snapshot of all accepted events in emission order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// OfKind returns the accepted events of the given kind, in emission order.
func (s *MemorySink) OfKind(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops all retained events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	log log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{log: logger}
}

func (s *LogSink) Accept(ev Event) {
	detail, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("dropping unencodable event", "kind", ev.Kind(), "error", err)
		return
	}
	s.log.Info("event", "kind", ev.Kind(), "detail", string(detail))
}

type fanoutSink []Sink

func (s fanoutSink) Accept(ev Event) {
	for _, sink := range s {
		sink.Accept(ev)
	}
}

// FanOut returns a sink that forwards each event to every given sink in
// order.
func FanOut(sinks ...Sink) Sink {
	return fanoutSink(sinks)
}
