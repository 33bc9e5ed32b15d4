// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/ava-labs/govpool/govpool"
)

var (
	labelStyle     = color.New(color.Faint)
	pendingStyle   = color.New(color.FgYellow)
	executedStyle  = color.New(color.FgGreen)
	approvedStyle  = color.New(color.FgGreen)
	rejectedStyle  = color.New(color.FgRed)
	cancelledStyle = color.New(color.Faint)
)

// newTable returns a border-less writer so output stays grep-friendly.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateRows = false
	t.Style().Options.SeparateColumns = false
	t.Style().Box = table.BoxStyle{PaddingRight: "   "}
	return t
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05 MST")
}

func proposalStatusCell(s govpool.ProposalStatus) string {
	if s == govpool.ProposalStatusExecuted {
		return executedStyle.Sprint(s.String())
	}
	return pendingStyle.Sprint(s.String())
}

func requestStatusCell(s govpool.RequestStatus) string {
	switch s {
	case govpool.RequestStatusApproved:
		return approvedStyle.Sprint(s.String())
	case govpool.RequestStatusRejected:
		return rejectedStyle.Sprint(s.String())
	case govpool.RequestStatusCancelled:
		return cancelledStyle.Sprint(s.String())
	default:
		return pendingStyle.Sprint(s.String())
	}
}

func printField(label, value string) {
	labelStyle.Printf("%-14s", label)
	fmt.Println(value)
}

func renderProposal(p *govpool.Proposal) {
	printField("id", p.ID.Hex())
	printField("type", p.Type.String())
	printField("status", proposalStatusCell(p.Status))
	printField("target", p.Target.Hex())
	switch p.Type.Class() {
	case govpool.ClassRole:
		printField("role", p.Role.String())
	case govpool.ClassRecovery, govpool.ClassWhitelist:
		printField("token", p.Token.Hex())
		printField("amount", p.Amount.String())
	}
	approvers := lo.Map(p.ApprovedBy, func(a common.Address, _ int) string {
		return a.Hex()
	})
	printField("approvals", fmt.Sprintf("%d (%s)", p.Approvals, strings.Join(approvers, ", ")))
	printField("created", formatTime(p.CreationTime))
	printField("executable", formatTime(p.ExecutionTime))
	printField("expires", formatTime(p.ExpiryTime))
}

func renderProposalTable(props []*govpool.Proposal) {
	if len(props) == 0 {
		fmt.Println("no live proposals")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "TYPE", "STATUS", "TARGET", "APPROVALS", "EXPIRES"})
	for _, p := range props {
		t.AppendRow(table.Row{
			p.ID.Hex(),
			p.Type.String(),
			proposalStatusCell(p.Status),
			p.Target.Hex(),
			p.Approvals,
			formatTime(p.ExpiryTime),
		})
	}
	fmt.Println(t.Render())
}

func renderPool(p *govpool.Pool) {
	printField("id", fmt.Sprintf("%d", p.ID))
	printField("name", p.Name)
	if p.Region != "" {
		printField("region", p.Region)
	}
	printField("creator", p.Creator.Hex())
	printField("stake", p.RequiredTokens.String())
	printField("members", fmt.Sprintf("%d/%d", len(p.Members), p.MaxMembers))
	printField("pending", fmt.Sprintf("%d", p.PendingRequests))
	if len(p.Members) == 0 {
		return
	}
	fmt.Println()
	t := newTable()
	t.AppendHeader(table.Row{"PEER", "ACCOUNT", "JOINED", "REPUTATION"})
	for _, m := range p.Members {
		t.AppendRow(table.Row{m.PeerID, m.Account.Hex(), formatTime(m.JoinDate), m.Reputation})
	}
	fmt.Println(t.Render())
}

func renderPoolTable(pools []*govpool.Pool) {
	if len(pools) == 0 {
		fmt.Println("no pools")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "NAME", "REGION", "MEMBERS", "PENDING", "STAKE"})
	for _, p := range pools {
		t.AppendRow(table.Row{
			p.ID,
			p.Name,
			p.Region,
			fmt.Sprintf("%d/%d", len(p.Members), p.MaxMembers),
			p.PendingRequests,
			p.RequiredTokens.String(),
		})
	}
	fmt.Println(t.Render())
}

func renderJoinRequest(r *govpool.JoinRequest) {
	printField("pool", fmt.Sprintf("%d", r.PoolID))
	printField("peer", r.PeerID)
	printField("account", r.Account.Hex())
	printField("status", requestStatusCell(r.Status))
	printField("votes", fmt.Sprintf("%d approve / %d reject", r.Approvals, r.Rejections))
	printField("created", formatTime(r.CreatedAt))
}

func renderJoinRequestTable(reqs []*govpool.JoinRequest) {
	if len(reqs) == 0 {
		fmt.Println("no pending requests")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"PEER", "ACCOUNT", "APPROVE", "REJECT", "CREATED"})
	for _, r := range reqs {
		t.AppendRow(table.Row{
			r.PeerID,
			r.Account.Hex(),
			r.Approvals,
			r.Rejections,
			formatTime(r.CreatedAt),
		})
	}
	fmt.Println(t.Render())
}
